package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/wtask/relay/internal/relay/conntable"
	"github.com/wtask/relay/internal/relay/history"
	"github.com/wtask/relay/internal/relay/netpoll"
)

var loopback = net.IPv4(127, 0, 0, 1)

var pollers = []struct {
	name string
	new  netpoll.Factory
}{
	{"default", netpoll.NewPoller},
	{"poll", netpoll.NewPollPoller},
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *logRecorder) Println(v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (r *logRecorder) errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := []string{}
	for _, l := range r.lines {
		if strings.HasPrefix(l, "ERR ") {
			errs = append(errs, l)
		}
	}
	return errs
}

func newTestServer(test *testing.T, options ...serverOption) (*Server, *Metrics) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(test, err)
	s, err := New(append([]serverOption{WithAddress(loopback, 0), WithMetrics(m)}, options...)...)
	require.NoError(test, err)
	test.Cleanup(func() { s.Close() })
	return s, m
}

func dial(test *testing.T, s *Server) net.Conn {
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(test, err)
	test.Cleanup(func() { conn.Close() })
	return conn
}

// cycleUntil - runs event loop cycles in the test goroutine until cond holds.
func cycleUntil(test *testing.T, s *Server, cond func() bool) {
	test.Helper()
	watchdog := time.AfterFunc(5*time.Second, func() { s.Shutdown() })
	defer watchdog.Stop()
	for i := 0; !cond(); i++ {
		require.Less(test, i, 1000, "condition is not reached")
		require.NoError(test, s.cycle())
	}
}

func connected(s *Server, n int) func() bool {
	return func() bool { return s.conns.Len() == n }
}

func queued(m *Metrics, n int) func() bool {
	return func() bool { return testutil.ToFloat64(m.Fragments) == float64(n) }
}

func receive(test *testing.T, conn net.Conn, size int) string {
	test.Helper()
	require.NoError(test, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, size)
	_, err := io.ReadFull(conn, buf)
	require.NoError(test, err)
	return string(buf)
}

func expectSilence(test *testing.T, conn net.Conn) {
	test.Helper()
	require.NoError(test, conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	n, err := conn.Read(make([]byte, 64))
	assert.Zero(test, n)
	var netErr net.Error
	if assert.True(test, errors.As(err, &netErr), "unexpected read error %v", err) {
		assert.True(test, netErr.Timeout())
	}
}

func write(test *testing.T, conn net.Conn, s string) {
	test.Helper()
	_, err := conn.Write([]byte(s))
	require.NoError(test, err)
}

func fds(s *Server) map[int]*conntable.Conn {
	all := map[int]*conntable.Conn{}
	s.conns.Scan(func(c *conntable.Conn) { all[c.FD] = c })
	return all
}

func TestNew_Options(test *testing.T) {
	cases := []serverOption{
		WithAddress(net.ParseIP("::1"), 0),
		WithAddress(nil, -1),
		WithAddress(nil, 65536),
		WithBufferSize(0),
		WithBatchSize(-1),
		WithMetrics(nil),
		WithHistory(nil, 1),
		WithPoller(nil),
	}
	for i, option := range cases {
		s, err := New(option)
		assert.Error(test, err, "case #%d", i)
		assert.Nil(test, s)
	}

	h, _ := history.NewStack(1)
	_, err := New(WithHistory(h, -1))
	assert.Error(test, err)

	s, err := New(WithAddress(loopback, 0), WithHistory(nil, 0))
	require.NoError(test, err)
	assert.Nil(test, s.history)
	require.NoError(test, s.Close())

	s, err = New(WithAddress(loopback, 0), WithBufferSize(16), WithBatchSize(4), WithHistory(h, 1), nil)
	require.NoError(test, err)
	defer s.Close()
	assert.Equal(test, 16, len(s.readBuf))
	assert.Equal(test, 4, s.batchSize)
	assert.Equal(test, 1, s.historyGreets)
}

func TestNew_ListenFailure(test *testing.T) {
	s, _ := newTestServer(test)
	port := s.Addr().(*net.TCPAddr).Port

	_, err := New(WithAddress(loopback, port))
	var stepErr *netpoll.StepError
	require.True(test, errors.As(err, &stepErr), "unexpected error %v", err)
	assert.Equal(test, "bind", stepErr.Step)
	assert.True(test, errors.Is(err, unix.EADDRINUSE))
}

func TestNew_PollerFailure(test *testing.T) {
	failure := errors.New("no readiness for you")
	_, err := New(WithAddress(loopback, 0), WithPoller(func() (netpoll.Poller, error) { return nil, failure }))
	assert.True(test, errors.Is(err, failure))
	assert.Contains(test, err.Error(), "poller")
}

func TestServer_Accept(test *testing.T) {
	for _, p := range pollers {
		test.Run(p.name, func(test *testing.T) {
			s, m := newTestServer(test, WithPoller(p.new), WithBatchSize(4))
			const total = 20
			for i := 0; i < total; i++ {
				dial(test, s)
			}
			cycleUntil(test, s, connected(s, total))

			ids := map[string]bool{}
			for fd, c := range fds(s) {
				assert.Equal(test, fd, c.FD)
				assert.Equal(test, "127.0.0.1", c.Addr)
				assert.NotEmpty(test, c.ID)
				ids[c.ID] = true
			}
			assert.Len(test, ids, total)
			assert.Equal(test, float64(total), testutil.ToFloat64(m.Accepted))
			assert.Equal(test, float64(total), testutil.ToFloat64(m.Connections))
		})
	}
}

func TestServer_Broadcast(test *testing.T) {
	for _, p := range pollers {
		test.Run(p.name, func(test *testing.T) {
			s, m := newTestServer(test, WithPoller(p.new))
			clients := []net.Conn{dial(test, s), dial(test, s), dial(test, s)}
			cycleUntil(test, s, connected(s, len(clients)))

			write(test, clients[0], "hello")
			cycleUntil(test, s, queued(m, 1))
			assert.Zero(test, s.pending.Len())

			expected := "127.0.0.1: hello"
			for i, c := range clients {
				assert.Equal(test, expected, receive(test, c, len(expected)), "client #%d", i)
				expectSilence(test, c)
			}
			assert.Equal(test, float64(len(expected)*len(clients)), testutil.ToFloat64(m.BroadcastBytes))
		})
	}
}

func TestServer_BroadcastOrder(test *testing.T) {
	s, _ := newTestServer(test)
	a := dial(test, s)
	cycleUntil(test, s, connected(s, 1))
	var fdA, fdB int
	for fd := range fds(s) {
		fdA = fd
	}
	b := dial(test, s)
	cycleUntil(test, s, connected(s, 2))
	for fd := range fds(s) {
		if fd != fdA {
			fdB = fd
		}
	}

	write(test, a, "first\n")
	write(test, b, "second\n")
	for _, fd := range []int{fdA, fdB} {
		expected := s.pending.Len() + 1
		deadline := time.Now().Add(2 * time.Second)
		for s.pending.Len() < expected {
			require.True(test, time.Now().Before(deadline), "no data from socket %d", fd)
			s.serveClient(fd)
			time.Sleep(time.Millisecond)
		}
	}
	s.broadcast()

	expected := "127.0.0.1: first\n127.0.0.1: second\n"
	for _, c := range []net.Conn{a, b} {
		assert.Equal(test, expected, receive(test, c, len(expected)))
	}
}

func TestServer_Teardown(test *testing.T) {
	rec := &logRecorder{}
	s, m := newTestServer(test, WithLogger(rec))
	a, b := dial(test, s), dial(test, s)
	cycleUntil(test, s, connected(s, 2))

	require.NoError(test, a.Close())
	cycleUntil(test, s, connected(s, 1))
	assert.Equal(test, float64(1), testutil.ToFloat64(m.Disconnected.WithLabelValues("left")))
	assert.Equal(test, float64(1), testutil.ToFloat64(m.Connections))

	write(test, b, "anyone?")
	cycleUntil(test, s, queued(m, 1))
	expected := "127.0.0.1: anyone?"
	assert.Equal(test, expected, receive(test, b, len(expected)))
	assert.Zero(test, testutil.ToFloat64(m.SendErrors), "torn down peer must not be a send target")
	assert.Empty(test, rec.errors())
}

func TestServer_EmptyCycle(test *testing.T) {
	s, m := newTestServer(test)
	a := dial(test, s)
	cycleUntil(test, s, connected(s, 1))

	assert.Zero(test, s.pending.Len())
	s.broadcast()
	assert.Zero(test, s.pending.Len())
	expectSilence(test, a)
	assert.Zero(test, testutil.ToFloat64(m.BroadcastBytes))
}

func TestServer_NoCrossCycleLeakage(test *testing.T) {
	s, m := newTestServer(test)
	a := dial(test, s)
	cycleUntil(test, s, connected(s, 1))

	write(test, a, "one")
	cycleUntil(test, s, queued(m, 1))
	assert.Equal(test, "127.0.0.1: one", receive(test, a, len("127.0.0.1: one")))

	write(test, a, "two")
	cycleUntil(test, s, queued(m, 2))
	assert.Equal(test, "127.0.0.1: two", receive(test, a, len("127.0.0.1: two")))
	expectSilence(test, a)
}

func TestServer_BoundedRead(test *testing.T) {
	s, m := newTestServer(test, WithBufferSize(4))
	a := dial(test, s)
	cycleUntil(test, s, connected(s, 1))

	write(test, a, "abcd\x00fgh")
	cycleUntil(test, s, queued(m, 2))
	expected := "127.0.0.1: abcd127.0.0.1: \x00fgh"
	assert.Equal(test, expected, receive(test, a, len(expected)))
	assert.Equal(test, float64(8), testutil.ToFloat64(m.ReceivedBytes))
}

func TestServer_History(test *testing.T) {
	h, err := history.NewStack(5)
	require.NoError(test, err)
	s, m := newTestServer(test, WithHistory(h, 2))

	a := dial(test, s)
	cycleUntil(test, s, connected(s, 1))
	for i, msg := range []string{"1\n", "2\n", "3\n"} {
		write(test, a, msg)
		cycleUntil(test, s, queued(m, i+1))
		receive(test, a, len("127.0.0.1: ")+len(msg))
	}
	assert.Equal(test, 3, h.Len())

	b := dial(test, s)
	cycleUntil(test, s, connected(s, 2))
	expected := "127.0.0.1: 2\n127.0.0.1: 3\n"
	assert.Equal(test, expected, receive(test, b, len(expected)))
	expectSilence(test, a)
}

func TestServer_UnknownSocket(test *testing.T) {
	rec := &logRecorder{}
	s, _ := newTestServer(test, WithLogger(rec))

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(test, err)
	defer unix.Close(pair[0])
	defer unix.Close(pair[1])
	_, err = unix.Write(pair[1], []byte("ghost"))
	require.NoError(test, err)

	s.serveClient(pair[0])
	assert.Zero(test, s.pending.Len())
	require.Len(test, rec.errors(), 1)
	assert.Contains(test, rec.errors()[0], "unknown socket")
}

func TestServer_WouldBlockIsNotTeardown(test *testing.T) {
	s, m := newTestServer(test)
	dial(test, s)
	cycleUntil(test, s, connected(s, 1))

	for fd := range fds(s) {
		s.serveClient(fd)
	}
	assert.Equal(test, 1, s.conns.Len())
	assert.Zero(test, s.pending.Len())
	assert.Equal(test, float64(1), testutil.ToFloat64(m.Connections))
}

func TestServer_Send(test *testing.T) {
	s, _ := newTestServer(test)

	pair, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(test, err)
	defer unix.Close(pair[0])
	require.NoError(test, netpoll.SetNonblock(pair[0]))

	big := make([]byte, 64<<20)
	n, err := s.send(pair[0], big)
	assert.True(test, errors.Is(err, ErrShortWrite), "unexpected error %v", err)
	assert.Less(test, n, len(big))

	require.NoError(test, unix.Close(pair[1]))
	_, err = s.send(pair[0], []byte("late"))
	assert.Error(test, err)
	assert.False(test, errors.Is(err, ErrShortWrite))
}

func TestServer_Serve(test *testing.T) {
	rec := &logRecorder{}
	s, err := New(WithAddress(loopback, 0), WithLogger(rec))
	require.NoError(test, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	a := dial(test, s)
	write(test, a, "ping")
	assert.Equal(test, "127.0.0.1: ping", receive(test, a, len("127.0.0.1: ping")))

	require.NoError(test, s.Shutdown())
	select {
	case err := <-done:
		assert.Equal(test, ErrServerClosed, err)
	case <-time.After(2 * time.Second):
		require.FailNow(test, "Serve does not return after Shutdown")
	}

	require.NoError(test, a.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = a.Read(make([]byte, 1))
	assert.Equal(test, io.EOF, err, "client socket must be closed on shutdown")

	assert.Equal(test, ErrServerClosed, s.Shutdown())
	assert.Equal(test, ErrServerClosed, s.Serve())
	assert.NoError(test, s.Close())
	assert.Empty(test, rec.errors())

	_, err = net.Dial("tcp", s.Addr().String())
	assert.Error(test, err, "listener must be closed")
}

func TestServer_ShutdownBeforeServe(test *testing.T) {
	s, err := New(WithAddress(loopback, 0))
	require.NoError(test, err)
	require.NoError(test, s.Shutdown())
	assert.Equal(test, ErrServerClosed, s.Serve())
}

func TestNewMetrics(test *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(test, err)
	_, err = NewMetrics(reg)
	assert.Error(test, err, "duplicate registration")

	m, err := NewMetrics(nil)
	require.NoError(test, err)
	m.joined()
	m.parted(partError)
	assert.Zero(test, testutil.ToFloat64(m.Connections))
	assert.Equal(test, float64(1), testutil.ToFloat64(m.Disconnected.WithLabelValues("error")))

	var none *Metrics
	assert.NotPanics(test, func() {
		none.joined()
		none.parted(partLeft)
		none.received(1)
		none.sent(1, nil)
		none.cycle()
	})
}

func TestPartReason_String(test *testing.T) {
	cases := map[partReason]string{
		partLeft:       "left",
		partError:      "error",
		partShutdown:   "shutdown",
		partReason(42): "unknown",
	}
	for r, expected := range cases {
		assert.Equal(test, expected, r.String())
	}
}
