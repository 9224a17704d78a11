package admission

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"elite-store-api/middleware/admission/application"
	"elite-store-api/middleware/admission/domain"
)

type KeyFunc func(r *http.Request) string

type Options struct {
	Store domain.StateStore
	Rule  domain.Rule

	// Stats is called inline on every decision. Sinks that do I/O must be
	// wrapped in an infra.AsyncStatsStore.
	Stats domain.StatsStore

	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultKeyFunc keys requests by client IP.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			// first hop is the original client
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware runs every request through the admission controller before
// anything else downstream. A nil Store disables it.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctrl, err := application.NewController(opts.Store, opts.Rule)
	if err != nil {
		log.Error().Err(err).Msg("admission controller disabled")
		return func(next http.Handler) http.Handler { return next }
	}

	// blocked clients tend to hammer; keep their log lines bounded
	blockedLog := &rate.Sometimes{First: 10, Interval: 10 * time.Second}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := opts.Now()
			key := domain.Key(opts.KeyFn(r))

			dec := ctrl.Admit(key, now)
			record(r, opts.Stats, dec, now)

			switch dec.Verdict {
			case domain.Blocked:
				blockedLog.Do(func() {
					log.Warn().Err(dec.Err()).Str("ip", string(key)).Time("unblock_at", dec.UnblockAt).Str("path", r.URL.Path).Msg("request from blocked ip rejected")
				})
				reject(w, http.StatusTooManyRequests, BlockedMessage)
				return

			case domain.Throttled:
				log.Warn().Err(dec.Err()).Str("ip", string(key)).Int("count", dec.Count).Int("limit", dec.Rule.MaxRequests).Time("unblock_at", dec.UnblockAt).Msg("rate limit exceeded, ip blocked")
				if opts.AddRateLimitHeaders {
					setRateLimitHeaders(w, dec, now)
				}
				w.Header().Set("Retry-After", formatSeconds(dec.UnblockAt.Sub(now)))
				reject(w, http.StatusTooManyRequests, ThrottledMessage)
				return
			}

			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w, dec, now)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, dec domain.Decision, now time.Time) {
	h := w.Header()
	h.Set("RateLimit-Limit", formatInt(dec.Rule.MaxRequests))
	h.Set("RateLimit-Remaining", formatInt(dec.Remaining()))
	h.Set("RateLimit-Reset", formatSeconds(dec.ResetAt.Sub(now)))
}

func record(r *http.Request, stats domain.StatsStore, dec domain.Decision, now time.Time) {
	if stats == nil {
		return
	}
	err := stats.Record(r.Context(), domain.StatsEvent{
		Key:     dec.Key,
		Verdict: dec.Verdict,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      now,
	})
	if err != nil {
		log.Debug().Err(err).Str("verdict", dec.Verdict.String()).Msg("admission stats record failed")
	}
}
