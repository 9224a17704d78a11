package infra

import (
	"context"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"elite-store-api/middleware/admission/domain"
)

// PrometheusStatsStore exposes decisions as a counter labelled by verdict
// and method. Paths and keys are left out and unknown methods collapse to
// OTHER to keep cardinality bounded.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusStatsStore registers its collectors on reg.
func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "elite_store",
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by verdict.",
		},
		[]string{"verdict", "method"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Verdict.String(), methodLabel(ev.Method)).Inc()
	return nil
}

// methodLabel folds the method into a fixed set so that clients cannot
// mint new series with made-up methods.
func methodLabel(method string) string {
	switch m := strings.ToUpper(strings.TrimSpace(method)); m {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace:
		return m
	default:
		return "OTHER"
	}
}

// MultiStatsStore fans an event out to several sinks and returns the
// first error after trying all of them.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
