package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of board event.
type EventType string

const (
	// Task lifecycle events (spec.md §4.1-§4.6).
	EventTaskCreated       EventType = "task.created"
	EventTaskYielded       EventType = "task.yielded"
	EventTaskBlocked       EventType = "task.blocked"
	EventTaskRemotePending EventType = "task.remote_pending"
	EventTaskCompleted     EventType = "task.completed"

	// Scheduler events.
	EventWorkerSteal EventType = "worker.steal"
	EventBoardKilled EventType = "board.killed"

	// System events.
	EventQueueDepth EventType = "queue.depth"
)

// Event represents a board event broadcast to subscribers.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event.
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON.
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// TaskEventData builds event data for a task lifecycle event.
func TaskEventData(taskID, fnName string, class string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"task_id": taskID,
		"fn_name": fnName,
		"class":   class,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// QueueDepthData builds event data for a queue-depth report.
func QueueDepthData(primary int, secondary []int) map[string]interface{} {
	return map[string]interface{}{
		"primary":   primary,
		"secondary": secondary,
	}
}
