package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrDatastoreConnection wraps any failure to reach the datastore at
	// startup. Callers exit non-zero on it.
	ErrDatastoreConnection = errors.New("datastore connection failed")
	// ErrInvalidState is returned when a transition is attempted out of order.
	ErrInvalidState = errors.New("invalid lifecycle state")
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultShutdownGrace  = 10 * time.Second
)

// Datastore is the backing store connection.
type Datastore interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
}

// Server is what the manager starts once connected. *http.Server fits.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type Manager struct {
	store          Datastore
	connectTimeout time.Duration
	shutdownGrace  time.Duration

	state atomic.Int32
	srv   Server
}

type Option func(*Manager)

func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.connectTimeout = d
		}
	}
}

func WithShutdownGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.shutdownGrace = d
		}
	}
}

func NewManager(store Datastore, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		connectTimeout: DefaultConnectTimeout,
		shutdownGrace:  DefaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State { return State(m.state.Load()) }

// Accepting reports whether new requests may be admitted.
func (m *Manager) Accepting() bool { return m.State() == Connected }

func (m *Manager) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("lifecycle transition")
	return true
}

// Start connects to the datastore within the connect timeout. On failure
// the manager ends in Closed and the error wraps ErrDatastoreConnection.
func (m *Manager) Start(ctx context.Context) error {
	if !m.transition(Disconnected, Connecting) {
		return fmt.Errorf("start from %s: %w", m.State(), ErrInvalidState)
	}

	connectCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	if err := m.store.Connect(connectCtx); err != nil {
		m.state.Store(int32(Closed))
		return fmt.Errorf("%w: %w", ErrDatastoreConnection, err)
	}

	m.transition(Connecting, Connected)
	log.Info().Dur("timeout", m.connectTimeout).Msg("datastore connected")
	return nil
}

// Run connects, serves srv until ctx is done, then stops. A nil srv is the
// serverless mode: no port is bound and Run only waits for ctx while the
// handler is driven by the host.
func (m *Manager) Run(ctx context.Context, srv Server) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	m.srv = srv

	errCh := make(chan error, 1)
	if srv != nil {
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	} else {
		log.Info().Msg("serverless mode, not binding a port")
	}

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server error")
	}

	stopErr := m.Stop(context.Background())
	if serveErr != nil {
		return errors.Join(serveErr, stopErr)
	}
	return stopErr
}

// Stop refuses new requests, gives in-flight ones up to the shutdown grace
// to finish, then closes the datastore.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.transition(Connected, Closing) {
		return fmt.Errorf("stop from %s: %w", m.State(), ErrInvalidState)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, m.shutdownGrace)
	defer cancel()

	var errs []error
	if m.srv != nil {
		if err := m.srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown incomplete")
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if err := m.store.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("datastore close: %w", err))
	}

	m.transition(Closing, Closed)
	log.Info().Msg("datastore connection closed")
	return errors.Join(errs...)
}

// NotAcceptingMessage answers requests that arrive outside the Connected state.
const NotAcceptingMessage = "Server is not accepting requests"

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

// Gate rejects requests with 503 unless the manager is Connected.
func (m *Manager) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Accepting() {
			w.Header().Set("Connection", "close")
			respondJSON(w, http.StatusServiceUnavailable, response{Success: false, Message: NotAcceptingMessage})
			return
		}
		next.ServeHTTP(w, r)
	})
}
