// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the scoreboard service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Aggregate store writes
	submissions      *prometheus.CounterVec
	submitLatency    prometheus.Histogram
	submitRetries    prometheus.Counter
	eventsDuplicate  prometheus.Counter
	totalPlayers     prometheus.Gauge
	storeErrors      *prometheus.CounterVec
	storeLatency     *prometheus.HistogramVec
	recomputeRepairs prometheus.Counter

	// Ranking engine
	queryLatency       *prometheus.HistogramVec
	cacheResults       *prometheus.CounterVec
	snapshotRebuilds   prometheus.Counter
	snapshotRebuildDur prometheus.Histogram
	snapshotGeneration prometheus.Gauge
	invalidations      prometheus.Counter

	// Eviction queue
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueError prometheus.Counter

	// Eviction workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoreboard",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(m.counter("submissions_total",
		"Score submissions by outcome (ok, duplicate, not_found, conflict, timeout, store_unavailable, ...)"),
		[]string{"outcome"})
	m.submitLatency = auto.NewHistogram(m.histogram("submit_latency_milliseconds",
		"End-to-end latency of a score submission including retries", m.histogramBuckets))
	m.submitRetries = auto.NewCounter(m.counter("submit_retries_total",
		"Submissions retried after a lock conflict"))
	m.eventsDuplicate = auto.NewCounter(m.counter("events_duplicate_total",
		"Submissions skipped because their request id was already seen"))
	m.totalPlayers = auto.NewGauge(m.gauge("total_players",
		"Players with an aggregate row"))
	m.storeErrors = auto.NewCounterVec(m.counter("store_errors_total",
		"Aggregate store errors by backend and kind"), []string{"store", "kind"})
	m.storeLatency = auto.NewHistogramVec(m.histogram("store_latency_milliseconds",
		"Aggregate store operation latency", m.histogramBuckets), []string{"store", "op"})
	m.recomputeRepairs = auto.NewCounter(m.counter("recompute_repairs_total",
		"Aggregates whose total differed from the event log sum on recompute"))

	m.queryLatency = auto.NewHistogramVec(m.histogram("query_latency_milliseconds",
		"Ranking query latency", m.histogramBuckets), []string{"query"})
	m.cacheResults = auto.NewCounterVec(m.counter("cache_results_total",
		"Snapshot cache lookups by result (hit, miss, stale, error)"), []string{"result"})
	m.snapshotRebuilds = auto.NewCounter(m.counter("snapshot_rebuilds_total",
		"Top-N snapshots recomputed from the aggregate store"))
	m.snapshotRebuildDur = auto.NewHistogram(m.histogram("snapshot_rebuild_duration_milliseconds",
		"Time to recompute a top-N snapshot", m.histogramBuckets))
	m.snapshotGeneration = auto.NewGauge(m.gauge("snapshot_generation",
		"Current ranking generation"))
	m.invalidations = auto.NewCounter(m.counter("invalidations_total",
		"Ranking invalidations signalled after committed submissions"))

	m.queueSize = auto.NewGauge(m.gauge("eviction_queue_size",
		"Pending cache eviction jobs"))
	m.queueCapacity = auto.NewGauge(m.gauge("eviction_queue_capacity",
		"Maximum pending cache eviction jobs"))
	m.queueUtilization = auto.NewGauge(m.gauge("eviction_queue_utilization_ratio",
		"Eviction queue fill ratio (0.0-1.0)"))
	m.queueEnqueued = auto.NewCounter(m.counter("eviction_queue_enqueued_total",
		"Eviction jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("eviction_queue_dequeued_total",
		"Eviction jobs handed to workers"))
	m.queueEnqueueError = auto.NewCounter(m.counter("eviction_queue_dropped_total",
		"Eviction jobs dropped (queue full or closed)"))

	m.workerCount = auto.NewGauge(m.gauge("eviction_worker_count",
		"Running eviction workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("eviction_worker_latency_milliseconds",
		"Time spent deleting a remote snapshot", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counter("eviction_worker_errors_total",
		"Failed remote snapshot deletions"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total",
		"HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counter("errors_by_endpoint_total",
		"HTTP errors by endpoint and error code"), []string{"endpoint", "method", "code"})
	m.errorsByComponent = auto.NewCounterVec(m.counter("errors_by_component_total",
		"Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogram("system_gc_pause_time_milliseconds",
		"Average GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordSubmission counts a submission by outcome code.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordSubmitLatency records submission latency in milliseconds.
func RecordSubmitLatency(latencyMs float64) {
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordSubmitRetry counts one conflict retry.
func RecordSubmitRetry() {
	globalManager.submitRetries.Inc()
}

// RecordEventDuplicate increments the duplicate submissions counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// UpdateTotalPlayers sets the number of players with an aggregate.
func UpdateTotalPlayers(count int) {
	globalManager.totalPlayers.Set(float64(count))
}

// RecordStoreError counts a store error of kind on backend store.
func RecordStoreError(store, kind string) {
	globalManager.storeErrors.WithLabelValues(store, kind).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(store, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(store, op).Observe(latencyMs)
}

// RecordRecomputeRepair counts an aggregate corrected by recompute.
func RecordRecomputeRepair() {
	globalManager.recomputeRepairs.Inc()
}

// RecordQueryLatency records a ranking query ("top" or "rank") latency in milliseconds.
func RecordQueryLatency(query string, latencyMs float64) {
	globalManager.queryLatency.WithLabelValues(query).Observe(latencyMs)
}

// RecordCacheResult counts a snapshot cache lookup result.
func RecordCacheResult(result string) {
	globalManager.cacheResults.WithLabelValues(result).Inc()
}

// RecordSnapshotRebuild records a snapshot recompute and its duration.
func RecordSnapshotRebuild(durationMs float64) {
	globalManager.snapshotRebuilds.Inc()
	globalManager.snapshotRebuildDur.Observe(durationMs)
}

// UpdateSnapshotGeneration sets the current ranking generation.
func UpdateSnapshotGeneration(gen uint64) {
	globalManager.snapshotGeneration.Set(float64(gen))
}

// RecordInvalidation counts a ranking invalidation.
func RecordInvalidation() {
	globalManager.invalidations.Inc()
}

// UpdateQueueSize sets the current eviction queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the eviction queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the eviction queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued eviction job.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued eviction job.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError counts a dropped eviction job.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueError.Inc()
}

// UpdateWorkerCount sets the number of running eviction workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records an eviction job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError counts a failed eviction job.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error response by its stable code.
func RecordErrorByEndpoint(endpoint, method, code string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, code).Inc()
}

// RecordErrorByComponent counts an error raised inside component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records average GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry all package-level recorders write to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
