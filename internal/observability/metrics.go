package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research pipeline service.
// Metrics are organized by subsystem: cycles, reports, similarity, downloads,
// push delivery, and LLM operations. All counters and histograms are registered
// via promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// CyclesStarted counts the total number of pipeline cycles accepted.
	CyclesStarted prometheus.Counter

	// CyclesCompleted counts the total number of cycles that finished with done status.
	CyclesCompleted prometheus.Counter

	// CyclesFailed counts the total number of cycles that ended in error status.
	CyclesFailed prometheus.Counter

	// CyclesRejected counts rejected cycle triggers, labeled by reason code.
	CyclesRejected *prometheus.CounterVec

	// CycleDuration observes the end-to-end duration of cycles in seconds.
	CycleDuration prometheus.Histogram

	// ReportsGenerated counts deep reports accepted from a generation backend.
	ReportsGenerated prometheus.Counter

	// ReportsDegraded counts reports assembled from the deterministic template
	// after the model chain was exhausted.
	ReportsDegraded prometheus.Counter

	// ReportsFailed counts papers left with an empty report after a per-item failure.
	ReportsFailed prometheus.Counter

	// SimilarityQueries counts archive similarity searches.
	SimilarityQueries prometheus.Counter

	// SimilarityQueryDuration observes similarity search duration in seconds.
	SimilarityQueryDuration prometheus.Histogram

	// DownloadsAttempted counts candidate URL download attempts.
	DownloadsAttempted prometheus.Counter

	// DownloadsSucceeded counts downloads that passed the signature check.
	DownloadsSucceeded prometheus.Counter

	// DownloadsCacheHits counts downloads short-circuited by the local cache.
	DownloadsCacheHits prometheus.Counter

	// PushAttempts counts webhook push attempts, labeled by outcome.
	PushAttempts *prometheus.CounterVec

	// LLMRequestsTotal counts generation requests, labeled by model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed generation requests, labeled by model and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes generation request duration in seconds, labeled by model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMContractRejections counts model outputs rejected by the completeness contract.
	LLMContractRejections *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Cycles
		CyclesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_started_total",
			Help:      "Total number of pipeline cycles accepted",
		}),
		CyclesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_completed_total",
			Help:      "Total number of pipeline cycles completed successfully",
		}),
		CyclesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_failed_total",
			Help:      "Total number of pipeline cycles that failed",
		}),
		CyclesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_rejected_total",
			Help:      "Total number of rejected cycle triggers by reason",
		}, []string{"reason"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of pipeline cycles in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		}),

		// Reports
		ReportsGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of deep reports generated by a model",
		}),
		ReportsDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_degraded_total",
			Help:      "Total number of reports assembled from the fallback template",
		}),
		ReportsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_failed_total",
			Help:      "Total number of papers left without a report after failure",
		}),

		// Similarity
		SimilarityQueries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarity_queries_total",
			Help:      "Total number of archive similarity searches",
		}),
		SimilarityQueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "similarity_query_duration_seconds",
			Help:      "Duration of archive similarity searches in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		// Downloads
		DownloadsAttempted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_attempted_total",
			Help:      "Total number of candidate URL download attempts",
		}),
		DownloadsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_succeeded_total",
			Help:      "Total number of downloads that passed validation",
		}),
		DownloadsCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_cache_hits_total",
			Help:      "Total number of downloads served from the local cache",
		}),

		// Push delivery
		PushAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_attempts_total",
			Help:      "Total number of webhook push attempts by outcome",
		}, []string{"outcome"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of generation requests by model",
		}, []string{"model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed generation requests by model",
		}, []string{"model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of generation requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
		LLMContractRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_contract_rejections_total",
			Help:      "Total number of model outputs rejected by the completeness contract",
		}, []string{"model"}),
	}
}

// RecordCycleStarted records that a cycle has been accepted.
func (m *Metrics) RecordCycleStarted() {
	m.CyclesStarted.Inc()
}

// RecordCycleCompleted records that a cycle has completed.
func (m *Metrics) RecordCycleCompleted(durationSeconds float64) {
	m.CyclesCompleted.Inc()
	m.CycleDuration.Observe(durationSeconds)
}

// RecordCycleFailed records that a cycle has failed.
func (m *Metrics) RecordCycleFailed(durationSeconds float64) {
	m.CyclesFailed.Inc()
	m.CycleDuration.Observe(durationSeconds)
}

// RecordCycleRejected records a rejected cycle trigger.
func (m *Metrics) RecordCycleRejected(reason string) {
	m.CyclesRejected.WithLabelValues(reason).Inc()
}

// RecordReportGenerated records a report accepted from a model.
func (m *Metrics) RecordReportGenerated() {
	m.ReportsGenerated.Inc()
}

// RecordReportDegraded records a report assembled from the fallback template.
func (m *Metrics) RecordReportDegraded() {
	m.ReportsDegraded.Inc()
}

// RecordReportFailed records a paper left without a report.
func (m *Metrics) RecordReportFailed() {
	m.ReportsFailed.Inc()
}

// RecordSimilarityQuery records a similarity search.
func (m *Metrics) RecordSimilarityQuery(durationSeconds float64) {
	m.SimilarityQueries.Inc()
	m.SimilarityQueryDuration.Observe(durationSeconds)
}

// RecordDownloadAttempt records a candidate download attempt.
func (m *Metrics) RecordDownloadAttempt() {
	m.DownloadsAttempted.Inc()
}

// RecordDownloadSuccess records a successful download.
func (m *Metrics) RecordDownloadSuccess() {
	m.DownloadsSucceeded.Inc()
}

// RecordDownloadCacheHit records a download served from cache.
func (m *Metrics) RecordDownloadCacheHit() {
	m.DownloadsCacheHits.Inc()
}

// RecordPushAttempt records a webhook push attempt.
func (m *Metrics) RecordPushAttempt(outcome string) {
	m.PushAttempts.WithLabelValues(outcome).Inc()
}

// RecordLLMRequest records a generation request.
func (m *Metrics) RecordLLMRequest(model string, durationSeconds float64) {
	m.LLMRequestsTotal.WithLabelValues(model).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordLLMRequestFailed records a failed generation request.
func (m *Metrics) RecordLLMRequestFailed(model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(model, errorType).Inc()
}

// RecordContractRejection records a model output rejected by the contract.
func (m *Metrics) RecordContractRejection(model string) {
	m.LLMContractRejections.WithLabelValues(model).Inc()
}
