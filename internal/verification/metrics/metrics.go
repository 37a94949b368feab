// Package metrics instruments verification writes and reads.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	creates        *prometheus.CounterVec
	createDuration *prometheus.HistogramVec
	deactivations  *prometheus.CounterVec
	batchSize      prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		creates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_verification_creates_total",
			Help: "Verification create attempts by store path and outcome.",
		}, []string{"path", "outcome"}),
		createDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eligibility_verification_create_duration_seconds",
			Help:    "Verification create latency by store path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		deactivations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eligibility_verification_deactivations_total",
			Help: "Verification deactivations by outcome.",
		}, []string{"outcome"}),
		batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "eligibility_verification_batch_size",
			Help:    "Number of records per batch verification create.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

func (m *Metrics) IncrementCreate(path, outcome string) {
	if m == nil {
		return
	}
	m.creates.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) ObserveCreateDuration(path string, start time.Time) {
	if m == nil {
		return
	}
	m.createDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDeactivation(outcome string) {
	if m == nil {
		return
	}
	m.deactivations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBatchSize(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}
