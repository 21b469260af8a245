package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_tasks_created_total",
			Help: "Total number of tasks created",
		},
		[]string{"fn_name", "class"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
		[]string{"fn_name", "status"},
	)

	TaskCPUTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tboard_task_cpu_seconds",
			Help:    "Per-task cumulative CPU time between yields, in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 0.1ms to ~13s
		},
		[]string{"fn_name"},
	)

	TaskYields = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tboard_task_yields",
			Help:    "Number of yields a task performed before completing",
			Buckets: prometheus.LinearBuckets(0, 2, 20),
		},
		[]string{"fn_name"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tboard_queue_depth",
			Help: "Current number of tasks waiting in a ready queue",
		},
		[]string{"queue"},
	)

	Steals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_steals_total",
			Help: "Total number of tasks the primary executor stole from a secondary queue",
		},
		[]string{"secondary"},
	)

	// Executor metrics
	ActiveExecutors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tboard_active_executors",
			Help: "Current number of running executors (primary + secondaries)",
		},
	)

	ExecutorBusy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tboard_executor_busy",
			Help: "1 if the executor is currently running a task, 0 if idle",
		},
		[]string{"executor"},
	)

	// Remote-task metrics
	RemoteEnvelopesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tboard_remote_envelopes_in_flight",
			Help: "Current number of remote-task envelopes awaiting an adapter response",
		},
	)

	RemoteEnvelopesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_remote_envelopes_sent_total",
			Help: "Total number of remote-task envelopes sent to the outbound transport",
		},
		[]string{"blocking"},
	)

	RemoteEnvelopesLeaked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tboard_remote_envelopes_leaked",
			Help: "Number of remote-task envelopes still parked at board shutdown",
		},
	)

	// History metrics
	HistoryMeanCPUTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tboard_history_mean_cpu_seconds",
			Help: "Running mean CPU time per completed execution, by function name",
		},
		[]string{"fn_name"},
	)

	HistoryMeanYields = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tboard_history_mean_yields",
			Help: "Running mean yield count per completed execution, by function name",
		},
		[]string{"fn_name"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tboard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Redis metrics (remote transport)
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tboard_redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"operation"},
	)

	RedisErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_redis_errors_total",
			Help: "Total number of Redis errors",
		},
		[]string{"operation"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tboard_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	// API metrics
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tboard_rate_limit_rejections_total",
			Help: "Total number of HTTP requests rejected by the per-client rate limiter",
		},
		[]string{"path"},
	)
)

// RecordTaskCreated records a task creation by function name and class.
func RecordTaskCreated(fnName, class string) {
	TasksCreated.WithLabelValues(fnName, class).Inc()
}

// RecordTaskCompletion records a task completion, its cumulative CPU time
// and the number of yields it performed.
func RecordTaskCompletion(fnName, status string, cpuSeconds float64, yields int) {
	TasksCompleted.WithLabelValues(fnName, status).Inc()
	TaskCPUTime.WithLabelValues(fnName).Observe(cpuSeconds)
	TaskYields.WithLabelValues(fnName).Observe(float64(yields))
}

// UpdateQueueDepth updates a ready queue's depth gauge.
func UpdateQueueDepth(queue string, depth float64) {
	QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordSteal records the primary executor stealing from a secondary queue.
func RecordSteal(secondary string) {
	Steals.WithLabelValues(secondary).Inc()
}

// SetActiveExecutors sets the active executors gauge.
func SetActiveExecutors(count float64) {
	ActiveExecutors.Set(count)
}

// SetExecutorBusy sets whether an executor is currently running a task.
func SetExecutorBusy(executor string, busy bool) {
	v := 0.0
	if busy {
		v = 1.0
	}
	ExecutorBusy.WithLabelValues(executor).Set(v)
}

// RecordRemoteEnvelopeSent records an outbound remote-task envelope.
func RecordRemoteEnvelopeSent(blocking bool) {
	label := "false"
	if blocking {
		label = "true"
	}
	RemoteEnvelopesSent.WithLabelValues(label).Inc()
	RemoteEnvelopesInFlight.Inc()
}

// RecordRemoteEnvelopeResolved records an inbound envelope being matched
// back to its originator.
func RecordRemoteEnvelopeResolved() {
	RemoteEnvelopesInFlight.Dec()
}

// SetRemoteEnvelopesLeaked sets the leaked-envelope gauge at shutdown.
func SetRemoteEnvelopesLeaked(count float64) {
	RemoteEnvelopesLeaked.Set(count)
}

// SetHistoryStats updates the per-function-name history gauges.
func SetHistoryStats(fnName string, meanCPUSeconds, meanYields float64) {
	HistoryMeanCPUTime.WithLabelValues(fnName).Set(meanCPUSeconds)
	HistoryMeanYields.WithLabelValues(fnName).Set(meanYields)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordRedisOperation records a Redis operation.
func RecordRedisOperation(operation string, duration float64) {
	RedisOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordRedisError records a Redis error.
func RecordRedisError(operation string) {
	RedisErrors.WithLabelValues(operation).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}

// RecordRateLimitRejection records an HTTP request turned away by the
// per-client rate limiter.
func RecordRateLimitRejection(path string) {
	RateLimitRejections.WithLabelValues(path).Inc()
}
