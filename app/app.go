// Package app assembles the service from its configuration: admission
// state, stats sinks, the datastore lifecycle and the HTTP surface.
//
// cmd/gateway runs it as a process. Hosts that invoke the handler
// themselves call Build, then Start, and route requests to App.
package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"elite-store-api/config"
	"elite-store-api/datastore"
	"elite-store-api/lifecycle"
	"elite-store-api/middleware/admission"
	"elite-store-api/middleware/admission/application"
	"elite-store-api/middleware/admission/infra"
	"elite-store-api/middleware/origin"
	"elite-store-api/server"
)

// Datastore is what the lifecycle drives and the health check pings.
type Datastore interface {
	lifecycle.Datastore
	server.Pinger
}

type buildOptions struct {
	datastore Datastore
	routes    server.Routes
	listener  net.Listener
}

type Option func(*buildOptions)

// WithDatastore replaces the Postgres datastore built from the config.
func WithDatastore(ds Datastore) Option {
	return func(o *buildOptions) { o.datastore = ds }
}

// WithRoutes mounts the domain route handlers.
func WithRoutes(r server.Routes) Option {
	return func(o *buildOptions) { o.routes = r }
}

// WithServerlessListener sets the socket the serverless host dispatches
// requests on. By default it is inherited on stdin.
func WithServerlessListener(ln net.Listener) Option {
	return func(o *buildOptions) { o.listener = ln }
}

type App struct {
	cfg     config.Config
	handler http.Handler

	Manager *lifecycle.Manager
	Store   *infra.Store
	Totals  *infra.MemoryStatsStore

	async    *infra.AsyncStatsStore
	rdb      *redis.Client
	listener net.Listener
}

// Build wires the service. It does not connect to the datastore; the
// only I/O is the Redis ping when Redis stats are enabled.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.datastore == nil {
		o.datastore = datastore.NewPostgres(cfg.DatastoreTarget())
	}

	a := &App{
		cfg:      cfg,
		listener: o.listener,
		Store: infra.NewStore(
			infra.WithWindow(application.NormalizeRule(cfg.Admission.Rule).Window),
			infra.WithCleanupEvery(cfg.Admission.SweepInterval),
		),
		Totals: infra.NewMemoryStatsStore(infra.WithTrackRoutes(false)),
		Manager: lifecycle.NewManager(o.datastore,
			lifecycle.WithConnectTimeout(cfg.ConnectTimeout),
			lifecycle.WithShutdownGrace(cfg.ShutdownGrace),
		),
	}

	sinks := infra.MultiStatsStore{a.Totals}
	var metrics http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		prom, err := infra.NewPrometheusStatsStore(reg)
		if err != nil {
			return nil, fmt.Errorf("metrics registration: %w", err)
		}
		sinks = append(sinks, prom)
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}
	if cfg.Stats.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := a.rdb.Ping(pingCtx).Result()
		cancel()
		if err != nil {
			_ = a.rdb.Close()
			return nil, fmt.Errorf("redis stats ping: %w", err)
		}

		a.async = infra.NewAsyncStatsStore(infra.NewRedisStatsStore(
			a.rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		))
		sinks = append(sinks, a.async)
	}

	errs := server.ErrorRenderer{Production: cfg.IsProduction()}
	allow := cfg.AllowList()
	if allow.Len() == 0 {
		log.Warn().Msg("origin allow-list is empty, every cross-origin request will be rejected")
	}
	keyFn := admission.DefaultKeyFunc(cfg.Admission.TrustXFF)

	a.handler = server.New(server.Options{
		Env:       cfg.Env,
		Routes:    o.routes,
		Errors:    errs,
		Datastore: o.datastore,
		Metrics:   metrics,
		Admission: []func(http.Handler) http.Handler{
			a.Manager.Gate,
			admission.Middleware(admission.Options{
				Store:               a.Store,
				Rule:                cfg.Admission.Rule,
				Stats:               sinks,
				KeyFn:               keyFn,
				AddRateLimitHeaders: cfg.Admission.RateLimitHeaders,
			}),
			admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
				Max:            cfg.Admission.MaxInFlight,
				RejectStatus:   http.StatusServiceUnavailable,
				AcquireTimeout: cfg.Admission.InFlightTimeout,
				Stats:          sinks,
				KeyFn:          keyFn,
			}),
			origin.Middleware(origin.Options{
				Validator: origin.NewValidator(allow),
				OnReject:  errs.Render,
			}),
		},
	})

	rule := application.NormalizeRule(cfg.Admission.Rule)
	log.Info().
		Dur("window", rule.Window).
		Int("max_requests", rule.MaxRequests).
		Dur("block_duration", rule.BlockDuration).
		Dur("sweep_every", a.Store.CleanupEvery()).
		Bool("trust_xff", cfg.Admission.TrustXFF).
		Int("origins", allow.Len()).
		Bool("metrics", cfg.MetricsEnabled).
		Bool("redis_stats", cfg.Stats.Enabled).
		Int("max_in_flight", cfg.Admission.MaxInFlight).
		Msg("admission configured")

	return a, nil
}

// ServeHTTP makes the App usable directly by a host. Requests are refused
// with 503 until Start has connected the datastore.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// Start launches the background workers and connects the datastore.
// Workers stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	a.startWorkers(ctx)
	return a.Manager.Start(ctx)
}

func (a *App) startWorkers(ctx context.Context) {
	a.Store.StartJanitor(ctx)
	if a.async != nil {
		a.async.Start(ctx)
	}
}

// Run connects, serves until ctx is done, then shuts down in order. In
// serverless mode requests arrive over FastCGI from the host instead of
// a bound port.
func (a *App) Run(ctx context.Context) error {
	a.startWorkers(ctx)
	defer a.Close()
	return a.Manager.Run(ctx, a.server())
}

func (a *App) server() lifecycle.Server {
	if a.cfg.Serverless {
		log.Info().Msg("serverless mode, serving requests dispatched by the host")
		return &server.FastCGI{Handler: a, Listener: a.listener}
	}

	addr := a.cfg.ListenAddr()
	log.Info().Str("addr", addr).Str("env", a.cfg.Env).Msg("http server configured")
	return &http.Server{
		Addr:              addr,
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}

// Close releases the Redis client. The datastore is closed by the
// lifecycle manager.
func (a *App) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
