//go:build unix

package netpoll

import (
	"errors"

	"golang.org/x/sys/unix"
)

const pollReadable = unix.POLLIN | unix.POLLHUP | unix.POLLERR | unix.POLLNVAL

// pollPoller - portable Poller over poll(2). Every Wait scans all registered fds.
type pollPoller struct {
	fds   []unix.PollFd
	index map[int]int // fd -> position in fds
	next  int         // scan start, rotated to keep delivery fair when batch is short
	ready []int
}

// NewPollPoller - builds Poller based on poll(2), available on any unix.
func NewPollPoller() (Poller, error) {
	return &pollPoller{index: make(map[int]int)}, nil
}

func (p *pollPoller) Add(fd int) error {
	if p.index == nil {
		return unix.EBADF
	}
	if _, ok := p.index[fd]; ok {
		return unix.EEXIST
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return unix.ENOENT
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) Wait(batch int) ([]int, error) {
	if batch <= 0 {
		return nil, ErrInvalidBatch
	}
	if p.index == nil {
		return nil, unix.EBADF
	}
	p.ready = p.ready[:0]
	n, err := unix.Poll(p.fds, -1)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return p.ready, nil
		}
		return nil, err
	}
	total := len(p.fds)
	if total == 0 || n == 0 {
		return p.ready, nil
	}
	start := p.next % total
	for k := 0; k < total && len(p.ready) < batch; k++ {
		pfd := &p.fds[(start+k)%total]
		if pfd.Revents&pollReadable != 0 {
			p.ready = append(p.ready, int(pfd.Fd))
		}
		pfd.Revents = 0
	}
	p.next = start + 1
	return p.ready, nil
}

func (p *pollPoller) Close() error {
	p.fds = nil
	p.index = nil
	return nil
}
