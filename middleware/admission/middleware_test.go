package admission

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elite-store-api/middleware/admission/domain"
	"elite-store-api/middleware/admission/infra"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestHandler(t *testing.T, rule domain.Rule, stats domain.StatsStore) (http.Handler, *clock, *int) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	h := Middleware(Options{
		Store:               infra.NewStore(),
		Rule:                rule,
		Stats:               stats,
		AddRateLimitHeaders: true,
		Now:                 clk.Now,
	})(next)
	return h, clk, &calls
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/api/products", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) response {
	t.Helper()
	var body response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMiddleware_AllowsThenThrottlesThenBlocks(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	h, clk, calls := newTestHandler(t, domain.Rule{
		Window:        time.Second,
		MaxRequests:   3,
		BlockDuration: 5 * time.Second,
	}, stats)

	for i := 0; i < 3; i++ {
		w := doRequest(h, "1.2.3.4:1000")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("RateLimit-Limit"))
		assert.Equal(t, formatInt(2-i), w.Header().Get("RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("RateLimit-Reset"))
		clk.advance(100 * time.Millisecond)
	}

	w := doRequest(h, "1.2.3.4:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response{Success: false, Message: ThrottledMessage}, decodeBody(t, w))
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	clk.advance(100 * time.Millisecond)
	w = doRequest(h, "1.2.3.4:1000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response{Success: false, Message: BlockedMessage}, decodeBody(t, w))
	assert.Empty(t, w.Header().Get("RateLimit-Limit"))
	assert.Empty(t, w.Header().Get("RateLimit-Remaining"))
	assert.Empty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, 3, *calls)
	assert.Equal(t, infra.Counters{Allowed: 3, Throttled: 1, Blocked: 1}, stats.Total())
}

func TestMiddleware_RecoversAfterBlockExpires(t *testing.T) {
	h, clk, calls := newTestHandler(t, domain.Rule{
		Window:        time.Second,
		MaxRequests:   1,
		BlockDuration: 2 * time.Second,
	}, nil)

	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:1").Code)

	clk.advance(2 * time.Second)
	w := doRequest(h, "10.0.0.1:1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("RateLimit-Remaining"))
	assert.Equal(t, 2, *calls)
}

func TestMiddleware_ClientsAreLimitedSeparately(t *testing.T) {
	h, _, _ := newTestHandler(t, domain.Rule{Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute}, nil)

	require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:1").Code)
}

func TestMiddleware_NilStorePassesThrough(t *testing.T) {
	called := false
	h := Middleware(Options{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	doRequest(h, "10.0.0.1:1")
	assert.True(t, called)
}

func TestMiddleware_HeadersCanBeDisabled(t *testing.T) {
	h := Middleware(Options{Store: infra.NewStore()})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := doRequest(h, "10.0.0.1:1")
	assert.Empty(t, w.Header().Get("RateLimit-Limit"))
}

// stallingSink stands in for a stats backend that has stopped answering.
type stallingSink struct {
	delay time.Duration
	seen  atomic.Int64
}

func (s *stallingSink) Record(context.Context, domain.StatsEvent) error {
	time.Sleep(s.delay)
	s.seen.Add(1)
	return nil
}

func TestMiddleware_RejectionLatencyIgnoresSlowStats(t *testing.T) {
	sink := &stallingSink{delay: 300 * time.Millisecond}
	async := infra.NewAsyncStatsStore(sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	async.Start(ctx)

	h, _, _ := newTestHandler(t, domain.Rule{Window: time.Minute, MaxRequests: 1, BlockDuration: time.Minute}, async)

	require.Equal(t, http.StatusOK, doRequest(h, "9.9.9.9:1").Code)
	for i := 0; i < 3; i++ {
		start := time.Now()
		w := doRequest(h, "9.9.9.9:1")
		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Less(t, time.Since(start), 100*time.Millisecond, "request %d waited on the stats sink", i)
	}

	assert.Eventually(t, func() bool { return sink.seen.Load() == 4 }, 3*time.Second, 20*time.Millisecond)
}
