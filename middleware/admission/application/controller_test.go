package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elite-store-api/middleware/admission/domain"
)

type fakeEntries struct {
	store *fakeStore
	key   domain.Key
}

func (e fakeEntries) UnblockAt() (time.Time, bool) {
	t, ok := e.store.blocks[e.key]
	return t, ok
}

func (e fakeEntries) Block(until time.Time) { e.store.blocks[e.key] = until }
func (e fakeEntries) Unblock()             { delete(e.store.blocks, e.key) }

func (e fakeEntries) Window() (domain.WindowEntry, bool) {
	w, ok := e.store.windows[e.key]
	return w, ok
}

func (e fakeEntries) SetWindow(w domain.WindowEntry) { e.store.windows[e.key] = w }

type fakeStore struct {
	blocks  map[domain.Key]time.Time
	windows map[domain.Key]domain.WindowEntry
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blocks:  make(map[domain.Key]time.Time),
		windows: make(map[domain.Key]domain.WindowEntry),
	}
}

func (s *fakeStore) Update(key domain.Key, fn func(domain.Entries)) {
	s.updates++
	fn(fakeEntries{store: s, key: key})
}

func newTestController(t *testing.T, store *fakeStore, rule domain.Rule) *Controller {
	t.Helper()
	c, err := NewController(store, rule)
	require.NoError(t, err)
	return c
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return epoch.Add(time.Duration(ms) * time.Millisecond) }

func TestNewController_RequiresStore(t *testing.T) {
	_, err := NewController(nil, domain.Rule{})
	require.Error(t, err)
}

func TestNewController_DefaultsInvalidRule(t *testing.T) {
	c := newTestController(t, newFakeStore(), domain.Rule{Window: -1, MaxRequests: 0})

	assert.Equal(t, domain.Rule{
		Window:        15 * time.Minute,
		MaxRequests:   100,
		BlockDuration: 30 * time.Minute,
	}, c.Rule())
}

func TestController_ScenarioThrottleBlockRecover(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{
		Window:        time.Second,
		MaxRequests:   3,
		BlockDuration: 5 * time.Second,
	})
	key := domain.Key("1.2.3.4")

	want := []domain.Verdict{domain.Allow, domain.Allow, domain.Allow, domain.Throttled}
	for i, ms := range []int{0, 100, 200, 300} {
		dec := c.Admit(key, at(ms))
		assert.Equal(t, want[i], dec.Verdict, "request at t=%d", ms)
	}

	dec := c.Admit(key, at(400))
	assert.Equal(t, domain.Blocked, dec.Verdict)

	dec = c.Admit(key, at(5500))
	assert.Equal(t, domain.Allow, dec.Verdict)
	assert.Equal(t, 1, dec.Count)
}

func TestController_ThrottleInsertsBlockEntry(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Minute, MaxRequests: 2, BlockDuration: time.Hour})
	key := domain.Key("10.0.0.1")

	c.Admit(key, at(0))
	c.Admit(key, at(1))
	_, blocked := store.blocks[key]
	require.False(t, blocked, "no block before the quota is exceeded")

	dec := c.Admit(key, at(2))
	require.Equal(t, domain.Throttled, dec.Verdict)
	assert.True(t, domain.IsThrottledError(dec.Err()))
	assert.Equal(t, at(2).Add(time.Hour), store.blocks[key])
	assert.Equal(t, at(2).Add(time.Hour), dec.UnblockAt)
	assert.Equal(t, 0, dec.Remaining())
}

func TestController_BlockedDoesNotTouchWindow(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Minute, MaxRequests: 1, BlockDuration: time.Hour})
	key := domain.Key("10.0.0.2")

	c.Admit(key, at(0))
	c.Admit(key, at(1))
	before := store.windows[key]

	for i := 0; i < 5; i++ {
		dec := c.Admit(key, at(10+i))
		require.Equal(t, domain.Blocked, dec.Verdict)
		assert.True(t, domain.IsBlockedError(dec.Err()))
		assert.Zero(t, dec.Count)
	}
	assert.Equal(t, before, store.windows[key])
}

func TestController_ExpiredBlockIsRemovedOnNextCheck(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Second, MaxRequests: 1, BlockDuration: time.Second})
	key := domain.Key("10.0.0.3")

	c.Admit(key, at(0))
	dec := c.Admit(key, at(1))
	require.Equal(t, domain.Throttled, dec.Verdict)

	// exactly at unblockAt the block no longer applies
	dec = c.Admit(key, at(1001))
	assert.Equal(t, domain.Allow, dec.Verdict)
	_, blocked := store.blocks[key]
	assert.False(t, blocked)
}

func TestController_WindowResetsAtBoundary(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Second, MaxRequests: 2, BlockDuration: time.Minute})
	key := domain.Key("10.0.0.4")

	c.Admit(key, at(0))
	c.Admit(key, at(500))

	dec := c.Admit(key, at(1000))
	assert.Equal(t, domain.Allow, dec.Verdict)
	assert.Equal(t, 1, dec.Count)
	assert.Equal(t, at(1000), store.windows[key].WindowStart)
	assert.Equal(t, at(2000), dec.ResetAt)
}

func TestController_IdleClientStartsFreshWindow(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Second, MaxRequests: 50, BlockDuration: time.Minute})
	key := domain.Key("10.0.0.5")

	for i := 0; i < 40; i++ {
		c.Admit(key, at(i))
	}
	dec := c.Admit(key, at(5000))
	assert.Equal(t, 1, dec.Count)
	assert.Equal(t, 49, dec.Remaining())
}

func TestController_KeysAreIndependent(t *testing.T) {
	store := newFakeStore()
	c := newTestController(t, store, domain.Rule{Window: time.Second, MaxRequests: 1, BlockDuration: time.Minute})

	c.Admit("a", at(0))
	require.Equal(t, domain.Throttled, c.Admit("a", at(1)).Verdict)
	assert.Equal(t, domain.Allow, c.Admit("b", at(2)).Verdict)
}
