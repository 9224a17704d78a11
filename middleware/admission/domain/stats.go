package domain

import (
	"context"
	"time"
)

// StatsEvent records one admission decision.
//
// Method and Path are plain strings so sinks stay independent of net/http.
// Watch the cardinality of Key and Path in sinks such as Redis or Prometheus.
type StatsEvent struct {
	Key     Key
	Verdict Verdict

	Method string
	Path   string

	At time.Time
}

// StatsStore persists admission statistics. Callers treat errors as
// best-effort and never fail a request because of them.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
