package conntable

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(test *testing.T) {
	t := New()
	assert.Zero(test, t.Len())
	_, ok := t.Lookup(7)
	assert.False(test, ok)

	cases := []struct {
		conn     *Conn
		expected bool
	}{
		{&Conn{FD: 7, Addr: "10.0.0.1"}, true},
		{&Conn{FD: 8, Addr: "10.0.0.2"}, true},
		{&Conn{FD: 7, Addr: "10.0.0.3"}, false},
		{nil, false},
	}
	for _, c := range cases {
		assert.Equal(test, c.expected, t.Insert(c.conn), "Insert(%+v)", c.conn)
	}
	assert.Equal(test, 2, t.Len())

	c, ok := t.Lookup(7)
	require.True(test, ok)
	assert.Equal(test, "10.0.0.1", c.Addr)

	removed, ok := t.Remove(7)
	require.True(test, ok)
	assert.Equal(test, 7, removed.FD)
	_, ok = t.Remove(7)
	assert.False(test, ok)
	_, ok = t.Lookup(7)
	assert.False(test, ok)
	assert.Equal(test, 1, t.Len())
}

func TestTable_Scan(test *testing.T) {
	t := New()
	for fd := 3; fd < 103; fd++ {
		require.True(test, t.Insert(&Conn{FD: fd}))
	}

	visited := []int{}
	t.Scan(func(c *Conn) {
		visited = append(visited, c.FD)
	})
	sort.Ints(visited)
	require.Len(test, visited, 100)
	for i, fd := range visited {
		assert.Equal(test, i+3, fd, "every connection is visited exactly once")
	}

	t.Scan(func(c *Conn) {
		if c.FD%2 == 0 {
			t.Remove(c.FD)
		}
	})
	assert.Equal(test, 50, t.Len())
}
