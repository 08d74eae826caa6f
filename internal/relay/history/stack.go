// Package history keeps a limited number of recent broadcast payloads.
package history

import (
	"fmt"
	"sync"
)

// Stack - accumulates a limited number of payloads in FIFO order.
// When stack is full, the oldest payload is dropped on every push.
type Stack struct {
	max  int
	mu   sync.RWMutex
	data [][]byte
}

// NewStack - builds history stack.
func NewStack(max int) (*Stack, error) {
	if max <= 0 {
		return nil, fmt.Errorf("history.NewStack: max (%d) must be greater than 0", max)
	}
	return &Stack{max: max, data: make([][]byte, 0, max)}, nil
}

// Len - returns number of kept payloads.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Push - keeps copy of payload. Empty payloads are ignored.
func (s *Stack) Push(payload []byte) {
	if len(payload) == 0 {
		return
	}
	item := append([]byte(nil), payload...)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == s.max {
		copy(s.data, s.data[1:])
		s.data = s.data[:s.max-1]
	}
	s.data = append(s.data, item)
}

// Tail - joins last n payloads, the oldest goes first.
// Negative n is treated as its absolute value. Returns nil when there is nothing to join.
func (s *Stack) Tail(n int) []byte {
	if n < 0 {
		n *= -1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > len(s.data) {
		n = len(s.data)
	}
	if n == 0 {
		return nil
	}
	size := 0
	for _, item := range s.data[len(s.data)-n:] {
		size += len(item)
	}
	tail := make([]byte, 0, size)
	for _, item := range s.data[len(s.data)-n:] {
		tail = append(tail, item...)
	}
	return tail
}
