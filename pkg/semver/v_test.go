package semver

import "testing"

func TestV_String(test *testing.T) {
	cases := []struct {
		v        V
		expected string
	}{
		{V{}, "0.0.0"},
		{V{Major: 1}, "1.0.0"},
		{V{Major: 1, Minor: 2}, "1.2.0"},
		{V{Major: 1, Minor: 2, Patch: 3}, "1.2.3"},
		{V{PreRelease: "alfa"}, "0.0.0-alfa"},
		{V{BuildMetadata: []string{"tag1", "tag2"}}, "0.0.0+tag1.tag2"},
		{V{Major: 1, Minor: 2, Patch: 3, PreRelease: "beta", BuildMetadata: []string{"x64"}}, "1.2.3-beta+x64"},
	}

	for _, c := range cases {
		test.Logf("%#v", c.v)
		actual := c.v.String()
		if actual != c.expected {
			test.Errorf("Error: expected %q, actual %q", c.expected, actual)
		}
	}
}

func TestParse(test *testing.T) {
	cases := []struct {
		s        string
		expected V
	}{
		{"0.0.0", V{}},
		{"1.2.3", V{Major: 1, Minor: 2, Patch: 3}},
		{"v1.2.3", V{Major: 1, Minor: 2, Patch: 3}},
		{"0.1.0-dev", V{Minor: 1, PreRelease: "dev"}},
		{"1.2.3-rc.1+linux.amd64", V{Major: 1, Minor: 2, Patch: 3, PreRelease: "rc.1", BuildMetadata: []string{"linux", "amd64"}}},
	}
	for _, c := range cases {
		actual, err := Parse(c.s)
		if err != nil {
			test.Errorf("Error: unexpected error for %q: %v", c.s, err)
			continue
		}
		if actual.String() != c.expected.String() {
			test.Errorf("Error: expected %q, actual %q", c.expected, actual)
		}
	}

	for _, s := range []string{"", "1", "1.2", "1.2.3.4", "a.b.c", "1.2.-3", "1.2.3-", "1.2.3+"} {
		if _, err := Parse(s); err == nil {
			test.Errorf("Error: expected error for %q", s)
		}
	}
}
