package admission

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"elite-store-api/middleware/admission/application"
	"elite-store-api/middleware/admission/domain"
	"elite-store-api/middleware/admission/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration

	// Stats receives a Busy event for every refused request.
	Stats domain.StatsStore
	KeyFn KeyFunc

	// Pool overrides the channel pool sized by Max.
	Pool domain.SlotPool
}

// ConcurrencyMiddleware caps the number of requests in flight. Max <= 0
// with no Pool disables it.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewSlots(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}

	inflight := application.NewInFlight(opts.Pool, opts.AcquireTimeout)
	busyLog := &rate.Sometimes{First: 5, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(opts.KeyFn(r))

			release, dec, err := inflight.Enter(r.Context(), key)
			defer release()

			if err != nil {
				record(r, opts.Stats, dec, time.Now())
				busyLog.Do(func() {
					log.Warn().Err(err).Str("ip", string(key)).Str("path", r.URL.Path).Msg("request refused, server busy")
				})
				reject(w, opts.RejectStatus, BusyMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
