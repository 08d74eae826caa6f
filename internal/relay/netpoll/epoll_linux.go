//go:build linux

package netpoll

import (
	"errors"

	"golang.org/x/sys/unix"
)

type epoll struct {
	fd     int
	events []unix.EpollEvent
	ready  []int
}

// NewEpoll - builds Poller based on epoll(7).
func NewEpoll() (Poller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epoll{fd: fd}, nil
}

func defaultPoller() (Poller, error) {
	return NewEpoll()
}

func (p *epoll) Add(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)})
}

func (p *epoll) Remove(fd int) error {
	return unix.EpollCtl(p.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epoll) Wait(batch int) ([]int, error) {
	if batch <= 0 {
		return nil, ErrInvalidBatch
	}
	if cap(p.events) < batch {
		p.events = make([]unix.EpollEvent, batch)
		p.ready = make([]int, 0, batch)
	}
	n, err := unix.EpollWait(p.fd, p.events[:batch], -1)
	p.ready = p.ready[:0]
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return p.ready, nil
		}
		return nil, err
	}
	// EPOLLHUP and EPOLLERR come without EPOLLIN sometimes, the read path will see them anyway
	for _, ev := range p.events[:n] {
		p.ready = append(p.ready, int(ev.Fd))
	}
	return p.ready, nil
}

func (p *epoll) Close() error {
	return unix.Close(p.fd)
}
