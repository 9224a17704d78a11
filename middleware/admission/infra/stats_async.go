package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"elite-store-api/middleware/admission/domain"
)

// ErrStatsDropped is returned by AsyncStatsStore.Record when its queue is full.
var ErrStatsDropped = errors.New("stats queue full, event dropped")

// AsyncStatsStore moves a slow sink, such as RedisStatsStore, off the
// request path. Record only enqueues; a single worker started by Start
// forwards events to the wrapped sink, each under its own timeout. When
// the queue is full the event is dropped and counted.
type AsyncStatsStore struct {
	next    domain.StatsStore
	queue   chan domain.StatsEvent
	timeout time.Duration

	dropped atomic.Int64
	failed  atomic.Int64

	startOnce sync.Once
	done      chan struct{}
}

type AsyncStatsOption func(*AsyncStatsStore)

// WithAsyncBuffer sets the queue length. Values below 1 are ignored.
func WithAsyncBuffer(n int) AsyncStatsOption {
	return func(s *AsyncStatsStore) {
		if n > 0 {
			s.queue = make(chan domain.StatsEvent, n)
		}
	}
}

// WithAsyncTimeout bounds each call to the wrapped sink.
func WithAsyncTimeout(d time.Duration) AsyncStatsOption {
	return func(s *AsyncStatsStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewAsyncStatsStore(next domain.StatsStore, opts ...AsyncStatsOption) *AsyncStatsStore {
	s := &AsyncStatsStore{
		next:    next,
		queue:   make(chan domain.StatsEvent, 1024),
		timeout: 500 * time.Millisecond,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record never blocks and ignores ctx: the event outlives the request.
func (s *AsyncStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	select {
	case s.queue <- ev:
		return nil
	default:
		s.dropped.Add(1)
		return ErrStatsDropped
	}
}

// Start runs the worker until ctx is done. Events still queued at that
// point are discarded. Calling Start more than once has no effect.
func (s *AsyncStatsStore) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Done is closed once the worker has exited.
func (s *AsyncStatsStore) Done() <-chan struct{} { return s.done }

func (s *AsyncStatsStore) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			s.forward(ctx, ev)
		}
	}
}

func (s *AsyncStatsStore) forward(ctx context.Context, ev domain.StatsEvent) {
	if s.next == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.next.Record(rctx, ev); err != nil {
		if s.failed.Add(1) == 1 {
			log.Warn().Err(err).Msg("admission stats sink failing, further errors logged at debug")
		} else {
			log.Debug().Err(err).Msg("admission stats sink error")
		}
	}
}

// Dropped is the number of events refused because the queue was full.
func (s *AsyncStatsStore) Dropped() int64 { return s.dropped.Load() }

// Failed is the number of events the wrapped sink returned an error for.
func (s *AsyncStatsStore) Failed() int64 { return s.failed.Load() }
