// Package prometheus implements blobtier.Metrics with Prometheus collectors.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/blobtier/pkg/blobtier"
)

// Metrics is the Prometheus implementation of blobtier.Metrics.
type Metrics struct {
	cacheRequests   *prometheus.CounterVec
	remoteDuration  *prometheus.HistogramVec
	remoteErrors    *prometheus.CounterVec
	alreadyStored   prometheus.Counter
	commits         *prometheus.CounterVec
	commitEntries   prometheus.Histogram
	readsDegraded   *prometheus.CounterVec
	coldTransitions *prometheus.CounterVec
}

var _ blobtier.Metrics = (*Metrics)(nil)

// New registers the blobtier collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobtier_cache_requests_total",
				Help: "Total number of local cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		remoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blobtier_remote_operation_duration_seconds",
				Help:    "Duration of remote backend operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		remoteErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobtier_remote_operation_errors_total",
				Help: "Total number of failed remote backend operations",
			},
			[]string{"operation"},
		),
		alreadyStored: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "blobtier_already_stored_total",
				Help: "Total number of uploads skipped because the content was already stored",
			},
		),
		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobtier_transaction_commits_total",
				Help: "Total number of transactional flushes by result",
			},
			[]string{"result"}, // "ok", "error"
		),
		commitEntries: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blobtier_transaction_commit_entries",
				Help:    "Number of buffered entries flushed per commit",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		readsDegraded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobtier_reads_degraded_total",
				Help: "Total number of reads that returned empty content after a failure",
			},
			[]string{"store"},
		),
		coldTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobtier_cold_storage_transitions_total",
				Help: "Total number of cold storage state transitions by target state",
			},
			[]string{"state"},
		),
	}
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRemote(op string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		m.remoteErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) ObserveAlreadyStored() {
	if m == nil {
		return
	}
	m.alreadyStored.Inc()
}

func (m *Metrics) ObserveCommit(entries int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commits.WithLabelValues(result).Inc()
	m.commitEntries.Observe(float64(entries))
}

func (m *Metrics) ObserveReadDegraded(store string) {
	if m == nil {
		return
	}
	m.readsDegraded.WithLabelValues(store).Inc()
}

func (m *Metrics) ObserveColdTransition(state string) {
	if m == nil {
		return
	}
	m.coldTransitions.WithLabelValues(state).Inc()
}
