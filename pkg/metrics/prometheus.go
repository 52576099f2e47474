// Package metrics provides Prometheus metrics for the jnana labeling service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Allocation
	allocations        *prometheus.CounterVec
	allocationAttempts prometheus.Histogram
	allocationRaces    *prometheus.CounterVec
	candidateSetSize   prometheus.Histogram
	reservationsActive prometheus.Gauge
	reservationsExpiry prometheus.Counter
	skips              *prometheus.CounterVec
	retirements        prometheus.Counter

	// Judgments and agreement
	judgments          *prometheus.CounterVec
	judgmentsDuplicate prometheus.Counter
	submissions        prometheus.Counter
	submissionLatency  prometheus.Histogram
	agreementAverage   prometheus.Gauge
	exportedRecords    prometheus.Gauge
	editRequests       prometheus.Counter

	// Caches
	cacheRequests *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     prometheus.Counter
	errorsByEndpoint    *prometheus.CounterVec

	// Activity queue and recorders
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueEnqueueErrors prometheus.Counter
	recorderCount      prometheus.Gauge
	activityRecorded   *prometheus.CounterVec
	activityErrors     prometheus.Counter
	activityLatency    prometheus.Histogram

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "jnana",
		subsystem:        "labeling",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.allocations = m.counterVec("allocations_total", "Allocation requests by outcome", "outcome")
	m.allocationAttempts = m.histogram("allocation_attempts", "Candidates popped per allocation", []float64{1, 2, 3, 5, 8, 13, 21, 34, 64})
	m.allocationRaces = m.counterVec("allocation_races_total", "Candidates dropped at reservation time", "kind")
	m.candidateSetSize = m.histogram("candidate_set_size", "Size of freshly built candidate sets", []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000})
	m.reservationsActive = m.gauge("reservations_active", "Reservations younger than the timer")
	m.reservationsExpiry = m.counter("reservations_expired_total", "Reservations converted into timeout skips")
	m.skips = m.counterVec("skips_total", "Skip records by reason", "reason")
	m.retirements = m.counter("retirements_total", "Items retired after repeated manual skips")

	m.judgments = m.counterVec("judgments_total", "Judgment rows written by label", "label")
	m.judgmentsDuplicate = m.counter("judgments_duplicate_total", "Judgment writes ignored as duplicates")
	m.submissions = m.counter("submissions_total", "Accepted item submissions")
	m.submissionLatency = m.histogram("submission_latency_seconds", "Time from reservation to submission", []float64{5, 15, 30, 60, 120, 240, 420, 600, 900})
	m.agreementAverage = m.gauge("agreement_average", "Average agreement score over scored sub-items")
	m.exportedRecords = m.gauge("exported_records", "Sub-items in the last export")
	m.editRequests = m.counter("edit_requests_total", "Edit requests queued for majority-incorrect sub-items")

	m.cacheRequests = m.counterVec("cache_requests_total", "Cache lookups by cache and result", "cache", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = m.counter("http_rate_limited_total", "Requests rejected by the per-worker limiter")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Error responses by endpoint and type", "endpoint", "method", "error_type")

	m.queueSize = m.gauge("activity_queue_size", "Activity events waiting to be recorded")
	m.queueCapacity = m.gauge("activity_queue_capacity", "Activity queue capacity")
	m.queueEnqueued = m.counter("activity_enqueued_total", "Activity events accepted by the queue")
	m.queueEnqueueErrors = m.counter("activity_enqueue_errors_total", "Activity events dropped because the queue was full or closed")
	m.recorderCount = m.gauge("activity_recorders", "Running activity recorder workers")
	m.activityRecorded = m.counterVec("activity_recorded_total", "Activity events persisted by action", "action")
	m.activityErrors = m.counter("activity_record_errors_total", "Activity events that failed to persist")
	m.activityLatency = m.histogram("activity_record_latency_milliseconds", "Time to persist one activity event", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Allocated heap bytes")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// RecordAllocation counts one allocation request by outcome (reserved, none_available, error).
func RecordAllocation(outcome string) {
	globalManager.allocations.WithLabelValues(outcome).Inc()
}

// RecordAllocationAttempts observes how many candidates one allocation popped.
func RecordAllocationAttempts(n int) {
	globalManager.allocationAttempts.Observe(float64(n))
}

// RecordAllocationRace counts a candidate dropped at pop time (stale, duplicate, invalid).
func RecordAllocationRace(kind string) {
	globalManager.allocationRaces.WithLabelValues(kind).Inc()
}

// RecordCandidateSetSize observes the size of a freshly built candidate set.
func RecordCandidateSetSize(n int) {
	globalManager.candidateSetSize.Observe(float64(n))
}

// UpdateActiveReservations sets the number of live reservations.
func UpdateActiveReservations(n int) {
	globalManager.reservationsActive.Set(float64(n))
}

// RecordReservationExpired counts a timeout conversion.
func RecordReservationExpired() {
	globalManager.reservationsExpiry.Inc()
}

// RecordSkip counts a skip record.
func RecordSkip(reason string) {
	globalManager.skips.WithLabelValues(reason).Inc()
}

// RecordRetirement counts a retirement.
func RecordRetirement() {
	globalManager.retirements.Inc()
}

// RecordJudgment counts a written judgment row.
func RecordJudgment(label string) {
	globalManager.judgments.WithLabelValues(label).Inc()
}

// RecordJudgmentDuplicate counts an ignored duplicate judgment write.
func RecordJudgmentDuplicate() {
	globalManager.judgmentsDuplicate.Inc()
}

// RecordSubmission counts an accepted submission and its latency in seconds.
func RecordSubmission(latencySeconds float64) {
	globalManager.submissions.Inc()
	globalManager.submissionLatency.Observe(latencySeconds)
}

// UpdateAgreementAverage sets the average agreement score.
func UpdateAgreementAverage(avg float64) {
	globalManager.agreementAverage.Set(avg)
}

// UpdateExportedRecords sets the number of records in the last export.
func UpdateExportedRecords(n int) {
	globalManager.exportedRecords.Set(float64(n))
}

// RecordEditRequest counts a queued edit request.
func RecordEditRequest() {
	globalManager.editRequests.Inc()
}

// RecordCacheHit counts a cache hit for the named cache.
func RecordCacheHit(cache string) {
	globalManager.cacheRequests.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss counts a cache miss for the named cache.
func RecordCacheMiss(cache string) {
	globalManager.cacheRequests.WithLabelValues(cache, "miss").Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited() {
	globalManager.httpRateLimited.Inc()
}

// RecordErrorByEndpoint counts an error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateQueueSize sets the activity queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the activity queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue counts an accepted activity event.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueEnqueueError counts a dropped activity event.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateRecorderCount sets the number of running recorder workers.
func UpdateRecorderCount(n int) {
	globalManager.recorderCount.Set(float64(n))
}

// RecordActivityRecorded counts a persisted activity event.
func RecordActivityRecorded(action string, latencyMs float64) {
	globalManager.activityRecorded.WithLabelValues(action).Inc()
	globalManager.activityLatency.Observe(latencyMs)
}

// RecordActivityError counts an activity event that failed to persist.
func RecordActivityError() {
	globalManager.activityErrors.Inc()
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry holding the service collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Totals gathers the registry and sums every counter and gauge family.
// Histograms report their sample count.
func Totals() (map[string]float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatherFailed, err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var sum float64
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				sum += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				sum += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				sum += float64(metric.GetHistogram().GetSampleCount())
			}
		}
		out[mf.GetName()] = sum
	}
	return out, nil
}
