// Package datastore owns the connection to the backing PostgreSQL
// database used by the route collaborators.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotConnected = errors.New("datastore: not connected")

// Postgres is a pgx pool with an explicit connect/close lifecycle.
type Postgres struct {
	target string

	mu   sync.RWMutex
	pool *pgxpool.Pool
}

func NewPostgres(target string) *Postgres {
	return &Postgres{target: strings.TrimSpace(target)}
}

// Connect builds the pool and pings it once. There is no retry: a failure
// here is fatal for the process.
func (p *Postgres) Connect(ctx context.Context) error {
	if p.target == "" {
		return errors.New("datastore: empty connection target")
	}

	cfg, err := pgxpool.ParseConfig(p.target)
	if err != nil {
		return fmt.Errorf("datastore: parse connection target: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("datastore: pool init failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("datastore: ping failed: %w", err)
	}

	p.mu.Lock()
	p.pool = pool
	p.mu.Unlock()
	return nil
}

// Close releases every pooled connection. pgxpool.Close waits for
// acquired connections, so it runs in the background and ctx bounds the wait.
func (p *Postgres) Close(ctx context.Context) error {
	p.mu.Lock()
	pool := p.pool
	p.pool = nil
	p.mu.Unlock()

	if pool == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("datastore: close: %w", ctx.Err())
	}
}

// Pool hands the connection pool to route collaborators.
func (p *Postgres) Pool() (*pgxpool.Pool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pool == nil {
		return nil, ErrNotConnected
	}
	return p.pool, nil
}

// Ping checks the live connection, used by the health endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	pool, err := p.Pool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}
