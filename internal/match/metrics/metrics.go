package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the match module.
type Metrics struct {
	// Match attempts by method and outcome
	MatchAttempts *prometheus.CounterVec

	// Match pipeline latency by method
	MatchDuration *prometheus.HistogramVec

	// Dual-store mismatches surfaced by the coherence protocol
	SyncMismatches prometheus.Counter
}

// New creates a new Metrics instance with all match module metrics registered.
func New() *Metrics {
	return &Metrics{
		MatchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_match_attempts_total",
			Help: "Total match attempts by verification method and outcome",
		}, []string{"method", "outcome"}), // outcome: "matched", "miss", "multiple", "error"

		MatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eligibility_match_duration_seconds",
			Help:    "Duration of match pipelines by verification method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method"}),

		SyncMismatches: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eligibility_match_sync_mismatches_total",
			Help: "Total v1/v2 store disagreements detected on write paths",
		}),
	}
}

// IncrementAttempt records one match attempt outcome.
func (m *Metrics) IncrementAttempt(method, outcome string) {
	if m != nil {
		m.MatchAttempts.WithLabelValues(method, outcome).Inc()
	}
}

// ObserveDuration records a match pipeline duration.
func (m *Metrics) ObserveDuration(method string, d time.Duration) {
	if m != nil {
		m.MatchDuration.WithLabelValues(method).Observe(d.Seconds())
	}
}

// IncrementSyncMismatch records a dual-store disagreement.
func (m *Metrics) IncrementSyncMismatch() {
	if m != nil {
		m.SyncMismatches.Inc()
	}
}
