package infra

import (
	"context"
	"sync"
)

// Slots is a SlotPool backed by a buffered channel: a send takes a slot,
// a receive frees it.
type Slots struct {
	sem chan struct{}
}

// NewSlots returns a pool of n slots. n below 1 is treated as 1.
func NewSlots(n int) *Slots {
	if n < 1 {
		n = 1
	}
	return &Slots{sem: make(chan struct{}, n)}
}

func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	// a free slot wins over an already expired ctx
	select {
	case s.sem <- struct{}{}:
		return s.releaser(), nil
	default:
	}

	select {
	case s.sem <- struct{}{}:
		return s.releaser(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Slots) releaser() func() {
	var once sync.Once
	return func() { once.Do(func() { <-s.sem }) }
}

func (s *Slots) InUse() int { return len(s.sem) }

func (s *Slots) Cap() int { return cap(s.sem) }
