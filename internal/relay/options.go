package relay

import (
	"errors"
	"fmt"
	"net"

	"github.com/wtask/relay/internal/relay/netpoll"
)

type serverOption func(s *Server) error

func setup(s *Server, options ...serverOption) error {
	if s == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return err
		}
	}
	return nil
}

// WithAddress - overwrites default listen address.
// Nil ip means all local addresses, port 0 means ephemeral port.
func WithAddress(ip net.IP, port int) serverOption {
	return func(s *Server) error {
		if ip != nil && ip.To4() == nil {
			return fmt.Errorf("relay.WithAddress: %s is not an IPv4 address", ip)
		}
		if port < 0 || port > 0xffff {
			return fmt.Errorf("relay.WithAddress: invalid port (%d)", port)
		}
		s.ip, s.port = ip, port
		return nil
	}
}

// WithBufferSize - overwrites default size of single read from client socket.
func WithBufferSize(size int) serverOption {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("relay.WithBufferSize: invalid size (%d)", size)
		}
		s.bufSize = size
		return nil
	}
}

// WithBatchSize - overwrites default max number of ready sockets handled per cycle.
func WithBatchSize(size int) serverOption {
	return func(s *Server) error {
		if size <= 0 {
			return fmt.Errorf("relay.WithBatchSize: invalid size (%d)", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithLogger - attach logger. Server is silent without it.
func WithLogger(l Logger) serverOption {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// WithMetrics - attach metrics collectors.
func WithMetrics(m *Metrics) serverOption {
	return func(s *Server) error {
		if m == nil {
			return errors.New("relay.WithMetrics: metrics is nil")
		}
		s.metrics = m
		return nil
	}
}

// WithHistory - keeps broadcast payloads in history
// and pushes latest greets of them to every newly accepted client.
// Nil history with zero greets disables the feature.
func WithHistory(h MessageHistory, greets int) serverOption {
	return func(s *Server) error {
		if greets < 0 {
			return fmt.Errorf("relay.WithHistory: invalid greets value (%d)", greets)
		}
		if h == nil && greets > 0 {
			return errors.New("relay.WithHistory: history is nil")
		}
		s.history, s.historyGreets = h, greets
		return nil
	}
}

// WithPoller - overwrites readiness notification mechanism.
func WithPoller(factory netpoll.Factory) serverOption {
	return func(s *Server) error {
		if factory == nil {
			return errors.New("relay.WithPoller: factory is nil")
		}
		s.newPoller = factory
		return nil
	}
}
