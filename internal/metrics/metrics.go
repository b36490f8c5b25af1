// Package metrics exposes prometheus collectors for the query pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "querygate"

// Query outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeCached    = "cached"
	OutcomeDenied    = "denied"
	OutcomeDegraded  = "degraded"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	queries       *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
	duration      prometheus.Histogram
	verdicts      *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Total number of processed queries by outcome",
			},
			[]string{"outcome"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_requests_total",
				Help:      "Total number of result cache lookups by result",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "End to end query processing time in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sanitizer_verdicts_total",
				Help:      "Total number of sanitizer verdicts by store family and verdict",
			},
			[]string{"family", "verdict"},
		),
	}
}

func (m *Metrics) RecordQuery(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

// RecordVerdict counts one sanitizer decision. verdict is allow, deny or recovered.
func (m *Metrics) RecordVerdict(family, verdict string) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(family, verdict).Inc()
}
