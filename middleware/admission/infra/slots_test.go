package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlots_AcquireAndRelease(t *testing.T) {
	s := NewSlots(2)
	ctx := context.Background()

	r1, err := s.Acquire(ctx)
	require.NoError(t, err)
	r2, err := s.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.InUse())

	r1()
	r1()
	assert.Equal(t, 1, s.InUse(), "second release must not free another slot")

	r2()
	assert.Equal(t, 0, s.InUse())
	assert.Equal(t, 2, s.Cap())
}

func TestSlots_AcquireHonoursDeadline(t *testing.T) {
	s := NewSlots(1)
	release, err := s.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSlots_FreeSlotBeatsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release, err := NewSlots(0).Acquire(ctx)
	require.NoError(t, err)
	release()
}
