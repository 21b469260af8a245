package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	// promauto already registers these at package init; just verify the
	// collectors exist so a nil pointer can't slip through a refactor.
	assert.NotNil(t, TasksCreated)
	assert.NotNil(t, TasksCompleted)
	assert.NotNil(t, TaskCPUTime)
	assert.NotNil(t, TaskYields)

	assert.NotNil(t, QueueDepth)
	assert.NotNil(t, Steals)

	assert.NotNil(t, ActiveExecutors)
	assert.NotNil(t, ExecutorBusy)

	assert.NotNil(t, RemoteEnvelopesInFlight)
	assert.NotNil(t, RemoteEnvelopesSent)
	assert.NotNil(t, RemoteEnvelopesLeaked)

	assert.NotNil(t, HistoryMeanCPUTime)
	assert.NotNil(t, HistoryMeanYields)

	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)

	assert.NotNil(t, RedisOperationDuration)
	assert.NotNil(t, RedisErrors)

	assert.NotNil(t, WebSocketConnections)
	assert.NotNil(t, WebSocketMessages)
}

func TestRecordTaskCreated(t *testing.T) {
	TasksCreated.Reset()

	RecordTaskCreated("collatz", "secondary")
	RecordTaskCreated("collatz", "secondary")
	RecordTaskCreated("priority_task", "priority")

	assert.Equal(t, float64(2), testutil.ToFloat64(TasksCreated.WithLabelValues("collatz", "secondary")))
}

func TestRecordTaskCompletion(t *testing.T) {
	TasksCompleted.Reset()
	TaskCPUTime.Reset()
	TaskYields.Reset()

	RecordTaskCompletion("collatz", "ok", 0.01, 12)
	RecordTaskCompletion("collatz", "panic", 0.002, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(TasksCompleted.WithLabelValues("collatz", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TasksCompleted.WithLabelValues("collatz", "panic")))
}

func TestUpdateQueueDepth(t *testing.T) {
	QueueDepth.Reset()

	UpdateQueueDepth("primary", 4)
	UpdateQueueDepth("secondary-0", 10)

	assert.Equal(t, float64(4), testutil.ToFloat64(QueueDepth.WithLabelValues("primary")))
}

func TestRecordSteal(t *testing.T) {
	Steals.Reset()

	RecordSteal("secondary-0")
	RecordSteal("secondary-0")
	RecordSteal("secondary-1")

	assert.Equal(t, float64(2), testutil.ToFloat64(Steals.WithLabelValues("secondary-0")))
}

func TestSetActiveExecutors(t *testing.T) {
	SetActiveExecutors(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(ActiveExecutors))

	SetActiveExecutors(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(ActiveExecutors))
}

func TestSetExecutorBusy(t *testing.T) {
	SetExecutorBusy("primary", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(ExecutorBusy.WithLabelValues("primary")))

	SetExecutorBusy("primary", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(ExecutorBusy.WithLabelValues("primary")))
}

func TestRecordRemoteEnvelopeSentAndResolved(t *testing.T) {
	RemoteEnvelopesSent.Reset()
	RemoteEnvelopesInFlight.Set(0)

	RecordRemoteEnvelopeSent(true)
	RecordRemoteEnvelopeSent(false)
	assert.Equal(t, float64(2), testutil.ToFloat64(RemoteEnvelopesInFlight))

	RecordRemoteEnvelopeResolved()
	assert.Equal(t, float64(1), testutil.ToFloat64(RemoteEnvelopesInFlight))
}

func TestSetRemoteEnvelopesLeaked(t *testing.T) {
	SetRemoteEnvelopesLeaked(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(RemoteEnvelopesLeaked))
}

func TestSetHistoryStats(t *testing.T) {
	SetHistoryStats("collatz", 0.05, 3.5)

	assert.Equal(t, float64(0.05), testutil.ToFloat64(HistoryMeanCPUTime.WithLabelValues("collatz")))
	assert.Equal(t, float64(3.5), testutil.ToFloat64(HistoryMeanYields.WithLabelValues("collatz")))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestDuration.Reset()
	HTTPRequestsTotal.Reset()

	RecordHTTPRequest("POST", "/tasks", "201", 0.01)
	RecordHTTPRequest("GET", "/tasks/123", "404", 0.001)

	assert.Equal(t, float64(1), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/tasks", "201")))
}

func TestRecordRedisOperation(t *testing.T) {
	RedisOperationDuration.Reset()

	RecordRedisOperation("XADD", 0.001)
	RecordRedisOperation("XREADGROUP", 0.01)
}

func TestRecordRedisError(t *testing.T) {
	RedisErrors.Reset()

	RecordRedisError("XADD")
	RecordRedisError("XADD")

	assert.Equal(t, float64(2), testutil.ToFloat64(RedisErrors.WithLabelValues("XADD")))
}

func TestSetWebSocketConnections(t *testing.T) {
	SetWebSocketConnections(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(WebSocketConnections))
}

func TestRecordWebSocketMessage(t *testing.T) {
	WebSocketMessages.Reset()

	RecordWebSocketMessage("task.created")
	RecordWebSocketMessage("task.completed")

	assert.Equal(t, float64(1), testutil.ToFloat64(WebSocketMessages.WithLabelValues("task.created")))
}
