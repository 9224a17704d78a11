package infra

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"elite-store-api/middleware/admission/domain"
)

const defaultShards = 32

// BlockStore maps a client key to the instant its block ends.
type BlockStore map[string]time.Time

// WindowCounter maps a client key to its current fixed window.
type WindowCounter map[string]domain.WindowEntry

type shard struct {
	mu      sync.Mutex
	blocks  BlockStore
	windows WindowCounter
}

// Store is the in-memory domain.StateStore. Keys are spread over shards by
// xxhash; one mutex per shard guards both the block and the window entry
// of a key, so an Update is a single read-modify-write.
//
// Expired block entries are dropped by the controller on the next request
// from the same key. Keys that never come back stay in memory unless
// StartJanitor is running.
type Store struct {
	shards       []*shard
	window       time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type StoreOption func(*Store)

// WithShards sets the number of shards. Values below 1 are ignored.
func WithShards(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithCleanupEvery enables the janitor at the given interval. Zero keeps
// eviction purely lazy.
func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// WithWindow tells the janitor how long a window lives, so it can drop
// counters of clients that went quiet.
func WithWindow(d time.Duration) StoreOption {
	return func(s *Store) { s.window = d }
}

func withClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		shards: make([]*shard, defaultShards),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			blocks:  make(BlockStore),
			windows: make(WindowCounter),
		}
	}
	return s
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *Store) shardFor(key string) *shard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// Update implements domain.StateStore.
func (s *Store) Update(key domain.Key, fn func(domain.Entries)) {
	k := string(key)
	sh := s.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	fn(entries{sh: sh, key: k})
}

// Len returns the number of block and window entries currently held.
func (s *Store) Len() (blocks, windows int) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		blocks += len(sh.blocks)
		windows += len(sh.windows)
		sh.mu.Unlock()
	}
	return blocks, windows
}

// Cleanup evicts blocks that have ended and, when a window length is
// known, windows that have expired. It never changes a decision: both
// kinds of entry are already treated as absent by the controller.
func (s *Store) Cleanup() {
	now := s.now()

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, until := range sh.blocks {
			if !now.Before(until) {
				delete(sh.blocks, k)
			}
		}
		if s.window > 0 {
			for k, w := range sh.windows {
				if w.Expired(now, s.window) {
					delete(sh.windows, k)
				}
			}
		}
		sh.mu.Unlock()
	}
}

// StartJanitor starts a goroutine that runs Cleanup periodically.
// Stop it by cancelling ctx.
func (s *Store) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// DoneContext is the part of context.Context the janitor needs.
type DoneContext interface {
	Done() <-chan struct{}
}

// entries is only used while its shard lock is held.
type entries struct {
	sh  *shard
	key string
}

func (e entries) UnblockAt() (time.Time, bool) {
	until, ok := e.sh.blocks[e.key]
	return until, ok
}

func (e entries) Block(until time.Time) { e.sh.blocks[e.key] = until }

func (e entries) Unblock() { delete(e.sh.blocks, e.key) }

func (e entries) Window() (domain.WindowEntry, bool) {
	w, ok := e.sh.windows[e.key]
	return w, ok
}

func (e entries) SetWindow(w domain.WindowEntry) { e.sh.windows[e.key] = w }
