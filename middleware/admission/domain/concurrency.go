package domain

import "context"

// SlotPool bounds the number of requests being served at once.
//
// Acquire waits until a slot is free or ctx is done, returning ctx's
// error in the latter case. The release func is safe to call more than
// once; only the first call frees the slot.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), err error)
	InUse() int
	Cap() int
}
