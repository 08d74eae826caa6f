package netpoll

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWakerClosed - returned by Wake after Close.
var ErrWakerClosed = errors.New("netpoll.Waker: closed")

// Waker - self-pipe to interrupt Poller.Wait from another goroutine.
// Register Fd() in the poller; Wake makes it readable.
type Waker struct {
	mu     sync.Mutex
	r, w   int
	closed bool
}

// NewWaker - builds non-blocking self-pipe.
func NewWaker() (*Waker, error) {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return nil, err
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := SetNonblock(fd); err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
			return nil, err
		}
	}
	return &Waker{r: p[0], w: p[1]}, nil
}

// Fd - returns the read end of the pipe.
func (w *Waker) Fd() int {
	return w.r
}

// Wake - makes Fd() readable. Safe for concurrent use.
func (w *Waker) Wake() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWakerClosed
	}
	_, err := unix.Write(w.w, []byte{1})
	if errors.Is(err, unix.EAGAIN) {
		// pipe is full, the reader is woken already
		return nil
	}
	return err
}

// Drain - consumes pending wake-ups.
func (w *Waker) Drain() {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(w.r, buf)
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close - closes both ends of the pipe.
func (w *Waker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	errR := unix.Close(w.r)
	errW := unix.Close(w.w)
	if errR != nil {
		return errR
	}
	return errW
}
