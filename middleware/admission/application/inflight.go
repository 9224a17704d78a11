package application

import (
	"context"
	"fmt"
	"time"

	"elite-store-api/middleware/admission/domain"
)

// InFlight turns the slot pool into admission decisions: a request either
// gets a slot or a Busy decision it can report like any other verdict.
type InFlight struct {
	pool domain.SlotPool
	wait time.Duration
}

// NewInFlight waits at most wait for a slot. wait <= 0 waits as long as
// the request context lives.
func NewInFlight(pool domain.SlotPool, wait time.Duration) *InFlight {
	return &InFlight{pool: pool, wait: wait}
}

// Enter returns a release func that is never nil. When no slot frees up
// the decision is Busy and its error wraps domain.ErrBusy.
func (f *InFlight) Enter(ctx context.Context, key domain.Key) (func(), domain.Decision, error) {
	dec := domain.Decision{Verdict: domain.Allow, Key: key}
	if f == nil || f.pool == nil {
		return func() {}, dec, nil
	}

	if f.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.wait)
		defer cancel()
	}

	release, err := f.pool.Acquire(ctx)
	if err != nil {
		dec.Verdict = domain.Busy
		return func() {}, dec, fmt.Errorf("%w: %d of %d slots in use: %w", domain.ErrBusy, f.pool.InUse(), f.pool.Cap(), err)
	}
	return release, dec, nil
}
