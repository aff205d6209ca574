package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper search service.
// Metrics are organized by subsystem: sessions, checkpoints, searches, papers,
// deduplication, scoring, and LLM operations. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// SessionsStarted counts the total number of search sessions initiated.
	SessionsStarted prometheus.Counter

	// SessionsCompleted counts the total number of sessions that produced a collection.
	SessionsCompleted prometheus.Counter

	// SessionsFailed counts the total number of sessions that ended in failure.
	SessionsFailed prometheus.Counter

	// SessionsCancelled counts the total number of sessions cancelled by user or system.
	SessionsCancelled prometheus.Counter

	// SessionDuration observes the end-to-end duration of sessions in seconds.
	SessionDuration prometheus.Histogram

	// IterationsPerSession observes the distribution of workflow iterations per session.
	IterationsPerSession prometheus.Histogram

	// CheckpointsRaised counts checkpoints presented, labeled by kind
	// ("strategy", "results").
	CheckpointsRaised *prometheus.CounterVec

	// CheckpointDecisions counts decisions received, labeled by kind and action.
	CheckpointDecisions *prometheus.CounterVec

	// CheckpointWaitDuration observes how long checkpoints waited for a decision in seconds.
	CheckpointWaitDuration *prometheus.HistogramVec

	// SearchesStarted counts searches initiated, labeled by paper source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by paper source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by paper source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by paper source.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the distribution of papers returned per search, labeled by source.
	PapersPerSearch *prometheus.HistogramVec

	// PapersDiscovered counts the total number of papers discovered.
	PapersDiscovered prometheus.Counter

	// PapersBySource counts papers discovered, labeled by paper source.
	PapersBySource *prometheus.CounterVec

	// PapersDuplicate counts the total number of duplicate records merged away
	// during deduplication.
	PapersDuplicate prometheus.Counter

	// DedupLLMPasses counts LLM-assisted deduplication passes, labeled by
	// outcome ("ok", "error", "malformed").
	DedupLLMPasses *prometheus.CounterVec

	// ScoringBatches counts relevance scoring batches, labeled by outcome
	// ("ok", "error").
	ScoringBatches *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to paper source APIs, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests to paper source APIs, labeled by source, endpoint, and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to paper source APIs in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from paper source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// LLMRequestsTotal counts LLM requests, labeled by model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM requests, labeled by model and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM request duration in seconds, labeled by model.
	LLMRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Sessions
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of search sessions started",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Total number of search sessions completed successfully",
		}),
		SessionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total number of search sessions that failed",
		}),
		SessionsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_cancelled_total",
			Help:      "Total number of search sessions cancelled",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of search sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		IterationsPerSession: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iterations_per_session",
			Help:      "Number of workflow iterations per session",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),

		// Checkpoints
		CheckpointsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_raised_total",
			Help:      "Total number of checkpoints presented by kind",
		}, []string{"kind"}),
		CheckpointDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_decisions_total",
			Help:      "Total number of checkpoint decisions by kind and action",
		}, []string{"kind", "action"}),
		CheckpointWaitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_wait_duration_seconds",
			Help:      "Time a checkpoint waited for a human decision in seconds",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"kind"}),

		// Searches
		SearchesStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of paper searches started by source",
		}, []string{"source"}),
		SearchesCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of paper searches completed by source",
		}, []string{"source"}),
		SearchesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of paper searches that failed by source",
		}, []string{"source"}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of paper searches in seconds by source",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		PapersPerSearch: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search by source",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200, 500},
		}, []string{"source"}),

		// Papers
		PapersDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_discovered_total",
			Help:      "Total number of papers discovered",
		}),
		PapersBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of papers discovered by source",
		}, []string{"source"}),
		PapersDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate paper records merged",
		}),
		DedupLLMPasses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_llm_passes_total",
			Help:      "Total number of LLM-assisted deduplication passes by outcome",
		}, []string{"outcome"}),
		ScoringBatches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_batches_total",
			Help:      "Total number of relevance scoring batches by outcome",
		}, []string{"outcome"}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by model",
		}, []string{"model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by model",
		}, []string{"model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"model"}),
	}
}

// RecordSessionStarted records that a session has started.
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
}

// RecordSessionCompleted records that a session has completed.
func (m *Metrics) RecordSessionCompleted(durationSeconds float64, iterations int) {
	m.SessionsCompleted.Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.IterationsPerSession.Observe(float64(iterations))
}

// RecordSessionFailed records that a session has failed.
func (m *Metrics) RecordSessionFailed(durationSeconds float64) {
	m.SessionsFailed.Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordSessionCancelled records that a session has been cancelled.
func (m *Metrics) RecordSessionCancelled() {
	m.SessionsCancelled.Inc()
}

// RecordCheckpointRaised records that a checkpoint was presented.
func (m *Metrics) RecordCheckpointRaised(kind string) {
	m.CheckpointsRaised.WithLabelValues(kind).Inc()
}

// RecordCheckpointDecision records a decision and how long the checkpoint waited.
func (m *Metrics) RecordCheckpointDecision(kind, action string, waitSeconds float64) {
	m.CheckpointDecisions.WithLabelValues(kind, action).Inc()
	m.CheckpointWaitDuration.WithLabelValues(kind).Observe(waitSeconds)
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, paperCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersPerSearch.WithLabelValues(source).Observe(float64(paperCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPapersDiscovered records papers discovered from a source.
func (m *Metrics) RecordPapersDiscovered(source string, count int) {
	m.PapersDiscovered.Add(float64(count))
	m.PapersBySource.WithLabelValues(source).Add(float64(count))
}

// RecordPaperDuplicates records duplicate records merged during deduplication.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordDedupLLMPass records an LLM-assisted deduplication pass.
func (m *Metrics) RecordDedupLLMPass(outcome string) {
	m.DedupLLMPasses.WithLabelValues(outcome).Inc()
}

// RecordScoringBatch records a relevance scoring batch.
func (m *Metrics) RecordScoringBatch(outcome string) {
	m.ScoringBatches.WithLabelValues(outcome).Inc()
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(model string, durationSeconds float64) {
	m.LLMRequestsTotal.WithLabelValues(model).Inc()
	m.LLMRequestDuration.WithLabelValues(model).Observe(durationSeconds)
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(model, errorType).Inc()
}
