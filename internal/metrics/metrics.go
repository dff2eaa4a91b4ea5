// Package metrics provides Prometheus metrics for ingestion, deduplication and search.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricListingsIngestedTotal = "propertyhub_listings_ingested_total"
	MetricMergesTotal           = "propertyhub_merges_total"
	MetricReviewsCreatedTotal   = "propertyhub_merge_reviews_created_total"
	MetricBatchDuration         = "propertyhub_batch_duration_seconds"
	MetricSweepDuration         = "propertyhub_sweep_duration_seconds"
	MetricSearchRequestsTotal   = "propertyhub_search_requests_total"
	MetricSearchDuration        = "propertyhub_search_duration_seconds"
)

// Merge triggers.
const (
	TriggerIngest = "ingest"
	TriggerSweep  = "sweep"
	TriggerReview = "review"
)

// Batch outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the service collectors. All operations are thread-safe.
type Metrics struct {
	listingsIngested *prometheus.CounterVec
	merges           *prometheus.CounterVec
	reviewsCreated   prometheus.Counter
	batchDuration    *prometheus.HistogramVec
	sweepDuration    prometheus.Histogram
	searchRequests   *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		listingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricListingsIngestedTotal,
				Help: "Listings ingested by dedup decision (new, auto, review)",
			},
			[]string{"decision"},
		),
		merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricMergesTotal,
				Help: "Canonical property merges by trigger",
			},
			[]string{"trigger"},
		),
		reviewsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricReviewsCreatedTotal,
				Help: "Merge reviews queued for human confirmation",
			},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBatchDuration,
				Help:    "Listing batch processing time in seconds by status",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		sweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSweepDuration,
				Help:    "Duration of a tenant-wide dedup sweep in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		searchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSearchRequestsTotal,
				Help: "Search requests by mode",
			},
			[]string{"mode"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricSearchDuration,
				Help:    "Search scoring and ranking time in seconds by mode",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncListingsIngested counts one listing by the decision taken for it.
func (m *Metrics) IncListingsIngested(decision string) {
	m.listingsIngested.WithLabelValues(decision).Inc()
}

// IncMerges counts a merge of two canonical properties.
func (m *Metrics) IncMerges(trigger string) {
	m.merges.WithLabelValues(trigger).Inc()
}

func (m *Metrics) IncReviewsCreated() {
	m.reviewsCreated.Inc()
}

func (m *Metrics) ObserveBatchDuration(status string, seconds float64) {
	m.batchDuration.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) ObserveSweepDuration(seconds float64) {
	m.sweepDuration.Observe(seconds)
}

// ObserveSearch records one search request and its duration.
func (m *Metrics) ObserveSearch(mode string, seconds float64) {
	m.searchRequests.WithLabelValues(mode).Inc()
	m.searchDuration.WithLabelValues(mode).Observe(seconds)
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.listingsIngested,
		m.merges,
		m.reviewsCreated,
		m.batchDuration,
		m.sweepDuration,
		m.searchRequests,
		m.searchDuration,
	}
}
