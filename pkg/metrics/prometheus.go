// Package metrics provides Prometheus metrics for the certwatch service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every certwatch collector.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Decision core
	detectionRuns      *prometheus.CounterVec
	detectionDuration  prometheus.Histogram
	needsChanged       *prometheus.CounterVec
	detectionSkipped   prometheus.Counter
	detectionCoalesced prometheus.Counter
	comparisons        *prometheus.CounterVec
	comparisonLatency  prometheus.Histogram
	constraintWarnings *prometheus.CounterVec
	sessionsCreated    prometheus.Counter
	sessionConflicts   *prometheus.CounterVec
	sessionDuplicates  prometheus.Counter

	// Detection job queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker pool
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Storage
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the Record* helpers

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "certwatch",
		subsystem:        "planner",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.detectionRuns = auto.NewCounterVec(
		m.counterOpts("detection_runs_total", "Need detection runs by trigger and outcome"),
		[]string{"trigger", "outcome"})
	m.detectionDuration = auto.NewHistogram(
		m.histogramOpts("detection_duration_milliseconds", "Duration of one need detection run"))
	m.needsChanged = auto.NewCounterVec(
		m.counterOpts("needs_changed_total", "Training needs touched by detection, by change"),
		[]string{"change"})
	m.detectionSkipped = auto.NewCounter(
		m.counterOpts("detection_rows_skipped_total", "Certificate rows skipped because of bad references or write failures"))
	m.detectionCoalesced = auto.NewCounter(
		m.counterOpts("detection_jobs_coalesced_total", "Detection jobs dropped because one was already pending for the company"))
	m.comparisons = auto.NewCounterVec(
		m.counterOpts("cost_comparisons_total", "Cost comparisons by result status"),
		[]string{"status"})
	m.comparisonLatency = auto.NewHistogram(
		m.histogramOpts("cost_comparison_latency_milliseconds", "Latency of a cost comparison including catalog reads"))
	m.constraintWarnings = auto.NewCounterVec(
		m.counterOpts("constraint_warnings_total", "Constraint warnings emitted by type and severity"),
		[]string{"type", "severity"})
	m.sessionsCreated = auto.NewCounter(
		m.counterOpts("sessions_created_total", "Training sessions created"))
	m.sessionConflicts = auto.NewCounterVec(
		m.counterOpts("session_conflicts_total", "Session creations rolled back by reason"),
		[]string{"reason"})
	m.sessionDuplicates = auto.NewCounter(
		m.counterOpts("session_duplicates_total", "Session creations answered from the idempotency cache"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Detection jobs waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Detection job queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue size over capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueued_total", "Detection jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeued_total", "Detection jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Detection jobs rejected by a full or closed queue"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_wait_milliseconds", "Time a detection job waited between request and pickup"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Workers in the detection pool"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Workers currently running a job"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count", "Workers waiting for a job"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Time a worker spent on one job"))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Jobs that ended with an error"))

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_operation_latency_milliseconds", "Storage operation latency by operation"),
		[]string{"operation"})
	m.repositoryErrors = auto.NewCounterVec(
		m.counterOpts("repository_errors_total", "Failed storage operations by operation"),
		[]string{"operation"})

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration"),
		[]string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and kind"),
		[]string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Errors by endpoint, method and kind"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "system_gc_pause_time_milliseconds",
		Help:    "GC pause time in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100},
	})
}

// Decision core.

// RecordDetectionRun records one detection run.
func RecordDetectionRun(trigger, outcome string, durationMs float64) {
	globalManager.detectionRuns.WithLabelValues(trigger, outcome).Inc()
	globalManager.detectionDuration.Observe(durationMs)
}

// RecordNeedsChanged adds the counts of one detection report.
func RecordNeedsChanged(created, updated, cancelled, skipped int) {
	globalManager.needsChanged.WithLabelValues("created").Add(float64(created))
	globalManager.needsChanged.WithLabelValues("updated").Add(float64(updated))
	globalManager.needsChanged.WithLabelValues("cancelled").Add(float64(cancelled))
	globalManager.detectionSkipped.Add(float64(skipped))
}

// RecordDetectionCoalesced counts a background job folded into a pending one.
func RecordDetectionCoalesced() {
	globalManager.detectionCoalesced.Inc()
}

// RecordComparison records a cost comparison outcome.
func RecordComparison(status string, latencyMs float64) {
	globalManager.comparisons.WithLabelValues(status).Inc()
	globalManager.comparisonLatency.Observe(latencyMs)
}

// RecordConstraintWarning counts one emitted warning.
func RecordConstraintWarning(warningType, severity string) {
	globalManager.constraintWarnings.WithLabelValues(warningType, severity).Inc()
}

// RecordSessionCreated counts a created session.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionConflict counts a rolled back session creation.
func RecordSessionConflict(reason string) {
	globalManager.sessionConflicts.WithLabelValues(reason).Inc()
}

// RecordSessionDuplicate counts a replayed session request.
func RecordSessionDuplicate() {
	globalManager.sessionDuplicates.Inc()
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a job waited.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Workers.

// UpdateWorkerCount sets the pool size.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Storage.

// RecordRepositoryOperation records a storage call; failed calls are also counted.
func RecordRepositoryOperation(operation string, latencyMs float64, failed bool) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
	if failed {
		globalManager.repositoryErrors.WithLabelValues(operation).Inc()
	}
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// Runtime.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// CollectSystem samples runtime statistics every interval until ctx is done.
func CollectSystem(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastGC uint32
	for {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		UpdateSystemMemoryUsage(ms.HeapInuse)
		UpdateSystemGoroutineCount(runtime.NumGoroutine())
		// PauseNs is a ring of the last 256 pauses.
		from := lastGC
		if ms.NumGC-from > uint32(len(ms.PauseNs)) {
			from = ms.NumGC - uint32(len(ms.PauseNs))
		}
		for i := from; i < ms.NumGC; i++ {
			RecordSystemGCPauseTime(float64(ms.PauseNs[i%uint32(len(ms.PauseNs))]) / float64(time.Millisecond))
		}
		lastGC = ms.NumGC

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
