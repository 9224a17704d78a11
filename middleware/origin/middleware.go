package origin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders = "Authorization, Content-Type, Accept, Origin, X-Requested-With"
	maxAge       = "600"
)

// ErrorFunc renders a rejected request.
type ErrorFunc func(w http.ResponseWriter, r *http.Request, err error)

type Options struct {
	Validator *Validator
	// OnReject defaults to a 403 JSON body.
	OnReject ErrorFunc
}

// Middleware checks the Origin header of every request that carries one.
// Accepted origins get credentialed CORS headers and preflights end here
// with 204. Rejected origins are handed to OnReject and never reach next.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.OnReject == nil {
		opts.OnReject = defaultReject
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if strings.TrimSpace(origin) == "" || opts.Validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if err := opts.Validator.Validate(origin); err != nil {
				log.Debug().Str("origin", origin).Str("path", r.URL.Path).Msg("cross-origin request rejected")
				opts.OnReject(w, r, err)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", allowMethods)
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func defaultReject(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": RejectedMessage})
}
