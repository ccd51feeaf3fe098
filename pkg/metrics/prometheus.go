// Package metrics provides Prometheus metrics for the contribution pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Intake metrics
	contributionsIngested   prometheus.Counter
	contributionsDuplicate  prometheus.Counter
	contributionsSkipped    *prometheus.CounterVec
	webhookSignatureFailure prometheus.Counter

	// Scoring metrics
	scoringRuns     prometheus.Counter
	scoringScored   prometheus.Counter
	scoringErrors   prometheus.Counter
	scoringLatency  prometheus.Histogram
	scoringEligible prometheus.Counter

	// Store metrics
	storeConflicts    prometheus.Counter
	contributionCount prometheus.Gauge

	// Queue metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Mint worker metrics
	mintSuccess       prometheus.Counter
	mintFailure       prometheus.Counter
	mintNoop          prometheus.Counter
	mintIneligible    prometheus.Counter
	mintLatency       prometheus.Histogram
	workerActiveCount prometheus.Gauge

	// On-chain submission metrics
	submissionPhase        *prometheus.CounterVec
	submissionPhaseFailure *prometheus.CounterVec
	submissionLatency      *prometheus.HistogramVec

	// Metadata publishing metrics
	metadataPublished   prometheus.Counter
	metadataPlaceholder prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "forgemint",
		subsystem:        "pipeline",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // metric registration is inherently long
	auto := promauto.With(m.registry)

	m.contributionsIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "contributions_ingested_total",
		Help:      "Total number of contributions created by webhook intake",
	})

	m.contributionsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "contributions_duplicate_total",
		Help:      "Total number of duplicate deliveries suppressed by dedup",
	})

	m.contributionsSkipped = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "contributions_skipped_total",
			Help:      "Total number of intake items skipped, by reason",
		},
		[]string{"reason"},
	)

	m.webhookSignatureFailure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "webhook_signature_failures_total",
		Help:      "Total number of webhook deliveries rejected for a bad signature",
	})

	m.scoringRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_runs_total",
		Help:      "Total number of scoring batch runs",
	})

	m.scoringScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_contributions_scored_total",
		Help:      "Total number of contributions scored",
	})

	m.scoringErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_errors_total",
		Help:      "Total number of per-item scoring failures",
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_latency_milliseconds",
		Help:      "Histogram of per-item scoring latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.scoringEligible = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_eligible_total",
		Help:      "Total number of contributions scored at or above the mint threshold",
	})

	m.storeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_transition_conflicts_total",
		Help:      "Total number of status transitions rejected by the store guard",
	})

	m.contributionCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "contributions_total",
		Help:      "Total number of contributions tracked by the store",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_size",
		Help:      "Current size of the mint task queue",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_capacity",
		Help:      "Maximum mint task queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_utilization_ratio",
		Help:      "Mint queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_enqueue_total",
		Help:      "Total number of mint tasks enqueued",
	})

	m.queueDequeues = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_dequeue_total",
		Help:      "Total number of mint tasks dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_queue_enqueue_errors_total",
		Help:      "Total number of mint task enqueue errors",
	})

	m.mintSuccess = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_success_total",
		Help:      "Total number of successful mints",
	})

	m.mintFailure = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_failure_total",
		Help:      "Total number of failed mint attempts",
	})

	m.mintNoop = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_noop_total",
		Help:      "Total number of mint tasks short-circuited for already-minted contributions",
	})

	m.mintIneligible = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_ineligible_total",
		Help:      "Total number of mint tasks refused by the eligibility gate",
	})

	m.mintLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "mint_latency_milliseconds",
		Help:      "Histogram of end-to-end mint task latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_active_count",
		Help:      "Number of active mint workers",
	})

	m.submissionPhase = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "submission_phase_total",
			Help:      "Total number of confirmed on-chain submission phases",
		},
		[]string{"phase"},
	)

	m.submissionPhaseFailure = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "submission_phase_failures_total",
			Help:      "Total number of failed on-chain submission phases",
		},
		[]string{"phase"},
	)

	m.submissionLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "submission_phase_latency_milliseconds",
			Help:      "Per-phase on-chain confirmation latency in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"phase"},
	)

	m.metadataPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "metadata_published_total",
		Help:      "Total number of metadata documents published to content-addressed storage",
	})

	m.metadataPlaceholder = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "metadata_placeholder_total",
		Help:      "Total number of placeholder metadata URIs issued without a pinning backend",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// Package-level helpers operating on the global manager.

// RecordContributionIngested increments the ingested contribution counter.
func RecordContributionIngested() {
	globalManager.contributionsIngested.Inc()
}

// RecordContributionDuplicate increments the duplicate delivery counter.
func RecordContributionDuplicate() {
	globalManager.contributionsDuplicate.Inc()
}

// RecordContributionSkipped increments the skipped counter for a reason
// such as "unknown_user" or "not_merged".
func RecordContributionSkipped(reason string) {
	globalManager.contributionsSkipped.WithLabelValues(reason).Inc()
}

// RecordWebhookSignatureFailure increments the rejected delivery counter.
func RecordWebhookSignatureFailure() {
	globalManager.webhookSignatureFailure.Inc()
}

// RecordScoringRun increments the batch run counter.
func RecordScoringRun() {
	globalManager.scoringRuns.Inc()
}

// RecordContributionScored increments the scored contribution counter.
func RecordContributionScored() {
	globalManager.scoringScored.Inc()
}

// RecordScoringError increments the per-item scoring failure counter.
func RecordScoringError() {
	globalManager.scoringErrors.Inc()
}

// RecordScoringLatency records per-item scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordEligible increments the eligible contribution counter.
func RecordEligible() {
	globalManager.scoringEligible.Inc()
}

// RecordStoreConflict increments the rejected transition counter.
func RecordStoreConflict() {
	globalManager.storeConflicts.Inc()
}

// UpdateContributionCount sets the tracked contribution gauge.
func UpdateContributionCount(count int) {
	globalManager.contributionCount.Set(float64(count))
}

// UpdateQueueSize sets the mint queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the mint queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio gauge.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueues.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeues.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordMintSuccess increments the successful mint counter.
func RecordMintSuccess() {
	globalManager.mintSuccess.Inc()
}

// RecordMintFailure increments the failed mint counter.
func RecordMintFailure() {
	globalManager.mintFailure.Inc()
}

// RecordMintNoop increments the already-minted short-circuit counter.
func RecordMintNoop() {
	globalManager.mintNoop.Inc()
}

// RecordMintIneligible increments the eligibility gate counter.
func RecordMintIneligible() {
	globalManager.mintIneligible.Inc()
}

// RecordMintLatency records end-to-end mint task latency in milliseconds.
func RecordMintLatency(latencyMs float64) {
	globalManager.mintLatency.Observe(latencyMs)
}

// UpdateWorkerActiveCount sets the active worker gauge.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordSubmissionPhase increments the confirmed phase counter.
func RecordSubmissionPhase(phase string) {
	globalManager.submissionPhase.WithLabelValues(phase).Inc()
}

// RecordSubmissionPhaseFailure increments the failed phase counter.
func RecordSubmissionPhaseFailure(phase string) {
	globalManager.submissionPhaseFailure.WithLabelValues(phase).Inc()
}

// RecordSubmissionLatency records per-phase confirmation latency in milliseconds.
func RecordSubmissionLatency(phase string, latencyMs float64) {
	globalManager.submissionLatency.WithLabelValues(phase).Observe(latencyMs)
}

// RecordMetadataPublished increments the published document counter.
func RecordMetadataPublished() {
	globalManager.metadataPublished.Inc()
}

// RecordMetadataPlaceholder increments the placeholder URI counter.
func RecordMetadataPlaceholder() {
	globalManager.metadataPlaceholder.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry for the /metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
