package relay

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wtask/relay/internal/relay/conntable"
	"github.com/wtask/relay/internal/relay/fragment"
	"github.com/wtask/relay/internal/relay/netpoll"
)

const (
	// DefaultPort - listen port used when no address option is given
	DefaultPort = 12345
	// DefaultBufferSize - max number of bytes taken from client socket per readiness event
	DefaultBufferSize = 1024
	// DefaultBatchSize - max number of ready sockets handled per cycle
	DefaultBatchSize = 32
)

// Server - chat relay over single readiness-driven event loop.
// Every fragment received from any client during a cycle is broadcast
// to all connected clients at the end of that cycle.
//
// Only Shutdown and Addr are safe to call from other goroutines,
// the rest belongs to the goroutine running Serve.
type Server struct {
	ip                 net.IP
	port               int
	bufSize, batchSize int
	logger             Logger
	metrics            *Metrics
	history            MessageHistory
	historyGreets      int
	newPoller          netpoll.Factory
	identify           sessionIdentifier

	listener int
	addr     *net.TCPAddr
	poller   netpoll.Poller
	waker    *netpoll.Waker
	conns    *conntable.Table
	pending  fragment.Queue
	readBuf  []byte

	serving, closed bool
}

// New - binds listening socket and prepares event loop.
// Any error here means the server can not run at all.
func New(options ...serverOption) (*Server, error) {
	s := &Server{
		port:      DefaultPort,
		bufSize:   DefaultBufferSize,
		batchSize: DefaultBatchSize,
		newPoller: netpoll.NewPoller,
		identify:  defaultSessionIdentifier,
		listener:  -1,
		conns:     conntable.New(),
	}
	if err := setup(s, options...); err != nil {
		return nil, err
	}
	s.readBuf = make([]byte, s.bufSize)

	var err error
	if s.listener, err = netpoll.Listen(s.ip, s.port); err != nil {
		return nil, fmt.Errorf("relay.New: listen: %w", err)
	}
	if s.addr, err = netpoll.LocalAddr(s.listener); err != nil {
		unix.Close(s.listener)
		return nil, fmt.Errorf("relay.New: listen: %w", err)
	}
	if s.poller, err = s.newPoller(); err != nil {
		unix.Close(s.listener)
		return nil, fmt.Errorf("relay.New: poller: %w", err)
	}
	if s.waker, err = netpoll.NewWaker(); err != nil {
		s.poller.Close()
		unix.Close(s.listener)
		return nil, fmt.Errorf("relay.New: waker: %w", err)
	}
	for _, fd := range []int{s.listener, s.waker.Fd()} {
		if err = s.poller.Add(fd); err != nil {
			s.waker.Close()
			s.poller.Close()
			unix.Close(s.listener)
			return nil, fmt.Errorf("relay.New: poller: %w", err)
		}
	}
	return s, nil
}

// Addr - returns address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Serve - runs event loop until Shutdown is called or readiness wait fails.
// All resources are released before return. After Shutdown returns ErrServerClosed.
func (s *Server) Serve() error {
	if s.closed {
		return ErrServerClosed
	}
	if s.serving {
		return ErrAlreadyServing
	}
	s.serving = true
	defer s.Close()

	logInfo(s.logger, "Listen", s.addr)
	for {
		if err := s.cycle(); err != nil {
			if err == ErrServerClosed {
				return err
			}
			logError(s.logger, "Readiness wait failed:", err)
			return fmt.Errorf("relay.Server: wait: %w", err)
		}
	}
}

// Shutdown - asks running event loop to stop. Safe for concurrent use.
// Serve releases resources and returns after the current cycle.
func (s *Server) Shutdown() error {
	err := s.waker.Wake()
	if err == netpoll.ErrWakerClosed {
		return ErrServerClosed
	}
	return err
}

// Close - tears down every client connection and releases the listener and the poller.
// Do not call it concurrently with Serve, use Shutdown instead.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.conns.Scan(func(c *conntable.Conn) {
		s.dropClient(c.FD, partShutdown, nil)
	})
	s.pending.Reset()

	var errs []error
	if err := s.poller.Close(); err != nil {
		errs = append(errs, fmt.Errorf("poller: %w", err))
	}
	if err := unix.Close(s.listener); err != nil {
		errs = append(errs, fmt.Errorf("listener: %w", err))
	}
	if err := s.waker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("waker: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logError(s.logger, "Close:", err)
		return fmt.Errorf("relay.Server: close: %w", err)
	}
	logInfo(s.logger, "Closed", s.addr)
	return nil
}

// cycle - waits for ready sockets, dispatches all of them, then broadcasts once.
func (s *Server) cycle() error {
	ready, err := s.poller.Wait(s.batchSize)
	if err != nil {
		return err
	}
	s.metrics.cycle()

	stop := false
	for _, fd := range ready {
		switch fd {
		case s.listener:
			s.acceptClients()
		case s.waker.Fd():
			stop = true
		default:
			s.serveClient(fd)
		}
	}
	s.broadcast()

	if stop {
		s.waker.Drain()
		return ErrServerClosed
	}
	return nil
}

// acceptClients - accepts pending connections until the listener would block.
func (s *Server) acceptClients() {
	for {
		fd, sa, err := unix.Accept(s.listener)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN):
				return
			case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
				continue
			default:
				logError(s.logger, "Accept failed:", err)
				return
			}
		}
		s.keepClient(fd, sa)
	}
}

// keepClient - registers accepted socket in the table and the poller, both or none.
func (s *Server) keepClient(fd int, sa unix.Sockaddr) {
	unix.CloseOnExec(fd)
	if err := netpoll.SetNonblock(fd); err != nil {
		logError(s.logger, "Can't unblock client socket", fd, err)
		s.closeSocket(fd)
		return
	}

	c := &conntable.Conn{
		FD:    fd,
		Addr:  netpoll.PeerIP(sa),
		ID:    s.identify(),
		Since: time.Now().UTC(),
	}
	if !s.conns.Insert(c) {
		// descriptor is reused only after close, so the table is out of sync with the kernel
		logError(s.logger, "Socket", fd, "is kept already, drop new client from", c.Addr)
		s.closeSocket(fd)
		return
	}
	s.greet(c)
	if err := s.poller.Add(fd); err != nil {
		s.conns.Remove(fd)
		logError(s.logger, "Can't watch client socket", fd, err)
		s.closeSocket(fd)
		return
	}
	s.metrics.joined()
	logInfo(s.logger, "Client", c.ID, "joined from", c.Addr)
}

// greet - pushes recent history to newly accepted client.
func (s *Server) greet(c *conntable.Conn) {
	tail := historyTail(s.history, s.historyGreets)
	if len(tail) == 0 {
		return
	}
	if _, err := s.send(c.FD, tail); err != nil {
		logError(s.logger, "Can't send history to", c.ID, err)
	}
}

// serveClient - takes one bounded read from ready client socket.
func (s *Server) serveClient(fd int) {
	n, err := unix.Read(fd, s.readBuf)
	switch {
	case err != nil && netpoll.Temporary(err):
		return
	case err != nil:
		s.dropClient(fd, partError, err)
	case n == 0:
		s.dropClient(fd, partLeft, nil)
	default:
		c, ok := s.conns.Lookup(fd)
		if !ok {
			logError(s.logger, "Got data from unknown socket", fd, "fragment dropped")
			return
		}
		s.pending.Append(fragment.Tag(c.Addr, s.readBuf[:n]))
		s.metrics.received(n)
	}
}

// dropClient - forgets client socket and closes it. Every step is attempted even if previous failed.
func (s *Server) dropClient(fd int, reason partReason, cause error) {
	c, ok := s.conns.Remove(fd)
	if err := s.poller.Remove(fd); err != nil {
		logError(s.logger, "Can't unwatch socket", fd, err)
	}
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil && !errors.Is(err, unix.ENOTCONN) {
		logError(s.logger, "Can't shutdown socket", fd, err)
	}
	s.closeSocket(fd)
	if !ok {
		return
	}
	s.metrics.parted(reason)
	if cause != nil {
		logInfo(s.logger, "Client", c.ID, "from", c.Addr, "has", reason, cause)
		return
	}
	logInfo(s.logger, "Client", c.ID, "from", c.Addr, "has", reason)
}

func (s *Server) closeSocket(fd int) {
	if err := unix.Close(fd); err != nil {
		logError(s.logger, "Can't close socket", fd, err)
	}
}

// broadcast - sends fragments queued during this cycle to every connected client.
func (s *Server) broadcast() {
	payload := s.pending.Flush()
	if len(payload) == 0 {
		return
	}
	historyPush(s.history, payload)
	s.conns.Scan(func(c *conntable.Conn) {
		n, err := s.send(c.FD, payload)
		s.metrics.sent(n, err)
		if err != nil {
			logError(s.logger, "Can't send to", c.ID, c.Addr, err)
		}
	})
}

// send - writes p to non-blocking socket until done or the socket would block.
func (s *Server) send(fd int, p []byte) (written int, err error) {
	for written < len(p) {
		n, err := unix.Write(fd, p[written:])
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return written, fmt.Errorf("%w: %d of %d byte(s) sent", ErrShortWrite, written, len(p))
			default:
				return written, err
			}
		}
		written += n
	}
	return written, nil
}
