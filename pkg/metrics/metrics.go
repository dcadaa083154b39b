package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueEnqueueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_queue_enqueue_total",
			Help: "Total number of enqueue attempts by outcome (count)",
		},
		[]string{"outcome"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_queue_depth",
			Help: "Number of events currently held in queue storage (count)",
		},
	)

	QueueSuspended = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_queue_suspended",
			Help: "Whether queue processing is suspended (0 or 1)",
		},
	)

	QueueBatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_queue_batch_size",
			Help: "Current submission batch size (count)",
		},
	)

	SubmissionRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_submission_requests_total",
			Help: "Total number of submission requests by operation and status code (count)",
		},
		[]string{"operation", "status"},
	)

	SubmissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_submission_duration_ms",
			Help:    "Duration of submission requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"operation"},
	)

	PipelineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_pipeline_events_total",
			Help: "Total number of events run through the plugin pipeline by outcome (count)",
		},
		[]string{"outcome"},
	)

	PluginDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courier_plugin_duration_ms",
			Help:    "Duration of a single plugin run in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"plugin"},
	)

	PluginFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_plugin_failures_total",
			Help: "Total number of plugin errors and panics (count)",
		},
		[]string{"plugin"},
	)

	DuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_duplicates_total",
			Help: "Total number of duplicate events by action (count)",
		},
		[]string{"action"},
	)

	SettingsVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "courier_settings_version",
			Help: "Version of the server settings currently applied",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courier_retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	CollectorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Total number of collector API requests by route and status (count)",
		},
		[]string{"route", "status"},
	)

	CollectorEventsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_events_received_total",
			Help: "Total number of events accepted by the collector (count)",
		},
	)
)

var (
	clientOnce    sync.Once
	collectorOnce sync.Once
)

// RegisterClientMetrics registers everything the client side reports.
// Safe to call more than once.
func RegisterClientMetrics() {
	clientOnce.Do(func() {
		prometheus.MustRegister(QueueEnqueueTotal)
		prometheus.MustRegister(QueueDepth)
		prometheus.MustRegister(QueueSuspended)
		prometheus.MustRegister(QueueBatchSize)
		prometheus.MustRegister(SubmissionRequestsTotal)
		prometheus.MustRegister(SubmissionDuration)
		prometheus.MustRegister(PipelineEventsTotal)
		prometheus.MustRegister(PluginDuration)
		prometheus.MustRegister(PluginFailuresTotal)
		prometheus.MustRegister(DuplicatesTotal)
		prometheus.MustRegister(SettingsVersion)
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterCollectorMetrics() {
	collectorOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(CollectorRequestsTotal)
		prometheus.MustRegister(CollectorEventsReceived)
	})
}

func IncEnqueue(outcome string) {
	QueueEnqueueTotal.WithLabelValues(outcome).Inc()
}

func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

func SetQueueSuspended(suspended bool) {
	if suspended {
		QueueSuspended.Set(1)
		return
	}
	QueueSuspended.Set(0)
}

func SetQueueBatchSize(n int) {
	QueueBatchSize.Set(float64(n))
}

func ObserveSubmission(operation string, status int, duration time.Duration) {
	SubmissionRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	SubmissionDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncPipelineEvent(outcome string) {
	PipelineEventsTotal.WithLabelValues(outcome).Inc()
}

func ObservePluginDuration(plugin string, duration time.Duration) {
	PluginDuration.WithLabelValues(plugin).Observe(float64(duration.Microseconds()) / 1000)
}

func IncPluginFailure(plugin string) {
	PluginFailuresTotal.WithLabelValues(plugin).Inc()
}

func IncDuplicate(action string) {
	DuplicatesTotal.WithLabelValues(action).Inc()
}

func SetSettingsVersion(version int) {
	SettingsVersion.Set(float64(version))
}

func IncRetryAttempt(operation string) {
	RetryAttemptsTotal.WithLabelValues(operation).Inc()
}

func IncCollectorRequest(route string, status int) {
	CollectorRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
