package netpoll

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// StepError - reports which step of socket setup has failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// SetNonblock - switches fd into non-blocking mode,
// so read, write and accept on it return unix.EAGAIN instead of suspending the caller.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// Listen - creates non-blocking IPv4 stream socket bound to ip:port and puts it into listening state.
// Nil or unspecified ip means all local addresses. Port 0 asks the kernel for an ephemeral port.
// The socket is closed if any step fails.
func Listen(ip net.IP, port int) (fd int, err error) {
	if port < 0 || port > 0xffff {
		return -1, &StepError{"bind", fmt.Errorf("invalid port %d", port)}
	}
	sa := &unix.SockaddrInet4{Port: port}
	if ip != nil {
		ip4 := ip.To4()
		if ip4 == nil {
			return -1, &StepError{"bind", fmt.Errorf("%s is not an IPv4 address", ip)}
		}
		copy(sa.Addr[:], ip4)
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, &StepError{"socket", err}
	}
	defer func() {
		if err != nil {
			unix.Close(fd)
			fd = -1
		}
	}()
	unix.CloseOnExec(fd)

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fd, &StepError{"setsockopt", err}
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fd, &StepError{"bind", err}
	}
	if err = SetNonblock(fd); err != nil {
		return fd, &StepError{"nonblock", err}
	}
	if err = unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fd, &StepError{"listen", err}
	}
	return fd, nil
}

// LocalAddr - returns address the socket is bound to.
func LocalAddr(fd int) (*net.TCPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]).To16(), Port: a.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	}
	return nil, errors.New("netpoll.LocalAddr: not an inet socket")
}

// PeerIP - formats IP of accepted peer, dotted quad for IPv4.
// Returns empty string for non-inet addresses.
func PeerIP(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(a.Addr[:]).String()
	case *unix.SockaddrInet6:
		return net.IP(a.Addr[:]).String()
	}
	return ""
}

// Temporary - reports whether err only means "nothing to do right now".
func Temporary(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
