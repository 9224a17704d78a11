// Package server assembles the HTTP surface: the admission chain in front
// of the mounted route collaborators, the health check, the not-found
// catch-all and the error renderer.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"elite-store-api/logging"
)

// Routes are the domain handlers mounted under /api. A nil route answers
// 501 until a collaborator is wired in.
type Routes struct {
	Auth     http.Handler
	Users    http.Handler
	Products http.Handler
	Orders   http.Handler
	Cart     http.Handler
}

// Pinger reports datastore health. *datastore.Postgres satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Env    string
	Routes Routes
	// Admission runs, in order, before any route. The first entry should
	// be the cheapest rejection.
	Admission []func(http.Handler) http.Handler
	Errors    ErrorRenderer
	Datastore Pinger
	// Metrics is served at /metrics outside the admission chain.
	Metrics http.Handler
	Now     func() time.Time
}

// New returns the root handler.
func New(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := chi.NewRouter()
	r.Use(opts.Errors.Recover)
	for _, mw := range opts.Admission {
		r.Use(mw)
	}

	r.Get("/api/health", healthHandler(opts))

	mount(r, "/api/auth", opts.Routes.Auth)
	mount(r, "/api/users", opts.Routes.Users)
	mount(r, "/api/products", opts.Routes.Products)
	mount(r, "/api/orders", opts.Routes.Orders)
	mount(r, "/api/cart", opts.Routes.Cart)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		opts.Errors.Render(w, req, ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		opts.Errors.Render(w, req, ErrRouteNotFound)
	})

	root := http.NewServeMux()
	if opts.Metrics != nil {
		root.Handle("/metrics", opts.Metrics)
	}
	root.Handle("/", r)

	return logging.AccessLog(root)
}

func mount(r chi.Router, prefix string, h http.Handler) {
	if h == nil {
		h = http.HandlerFunc(notImplemented)
	}
	r.Mount(prefix, h)
}

func notImplemented(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusNotImplemented, response{Success: false, Message: NotImplementedMessage})
}

type healthResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}

func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := healthResponse{
			Success:     true,
			Message:     "Server is running",
			Environment: opts.Env,
			Timestamp:   opts.Now().UTC(),
		}

		if opts.Datastore != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Datastore.Ping(ctx); err != nil {
				body.Success = false
				body.Message = "Datastore unavailable"
				respondJSON(w, http.StatusServiceUnavailable, body)
				return
			}
		}

		respondJSON(w, http.StatusOK, body)
	}
}
