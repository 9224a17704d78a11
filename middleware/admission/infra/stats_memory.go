package infra

import (
	"context"
	"sync"

	"elite-store-api/middleware/admission/domain"
)

type Counters struct {
	Allowed   int64
	Throttled int64
	Blocked   int64
	Busy      int64
}

func (c *Counters) add(v domain.Verdict) {
	switch v {
	case domain.Allow:
		c.Allowed++
	case domain.Throttled:
		c.Throttled++
	case domain.Blocked:
		c.Blocked++
	case domain.Busy:
		c.Busy++
	}
}

// MemoryStatsStore keeps counters in memory. Useful for tests and
// development; it never expires anything.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys   bool
	trackRoutes bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithTrackRoutes controls the per method+path breakdown. On by default.
func WithTrackRoutes(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackRoutes = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]Counters),
		byKey:   make(map[string]Counters),

		trackRoutes: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Verdict)

	if s.trackRoutes {
		route := ev.Method + " " + ev.Path
		c := s.byRoute[route]
		c.add(ev.Verdict)
		s.byRoute[route] = c
	}

	if s.trackKeys {
		k := s.byKey[string(ev.Key)]
		k.add(ev.Verdict)
		s.byKey[string(ev.Key)] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byRoute))
	for k, v := range s.byRoute {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
