package realtime

import (
	"time"

	"github.com/scenarr/scenarr/internal/db"
)

// EventEmitter provides a convenient way to emit events
type EventEmitter struct {
	hub *Hub
}

// NewEventEmitter creates a new event emitter
func NewEventEmitter(hub *Hub) *EventEmitter {
	return &EventEmitter{hub: hub}
}

// QueueChanged emits queue.added for new items, queue.progress when the
// status is unchanged and queue.status otherwise.
func (e *EventEmitter) QueueChanged(item db.QueueItem, from db.QueueStatus) {
	data := map[string]interface{}{
		"id":       item.ID,
		"sceneId":  item.SceneID,
		"title":    item.Title,
		"status":   item.Status,
		"progress": item.Progress,
	}

	eventType := EventQueueStatus
	switch from {
	case "":
		eventType = EventQueueAdded
	case item.Status:
		eventType = EventQueueProgress
	default:
		data["from"] = from
		if item.LastError != "" {
			data["error"] = item.LastError
		}
	}
	e.hub.Broadcast(Event{Type: eventType, Data: data})
}

// JobStarted emits a job started event
func (e *EventEmitter) JobStarted(name, runID string) {
	e.hub.Broadcast(Event{
		Type: EventJobStarted,
		Data: map[string]interface{}{
			"job":   name,
			"runId": runID,
		},
	})
}

// JobCompleted emits a job completed event
func (e *EventEmitter) JobCompleted(name, runID string, took time.Duration) {
	e.hub.Broadcast(Event{
		Type: EventJobCompleted,
		Data: map[string]interface{}{
			"job":        name,
			"runId":      runID,
			"durationMs": took.Milliseconds(),
		},
	})
}

// JobFailed emits a job failed event
func (e *EventEmitter) JobFailed(name, runID string, err error) {
	e.hub.Broadcast(Event{
		Type: EventJobFailed,
		Data: map[string]interface{}{
			"job":   name,
			"runId": runID,
			"error": err.Error(),
		},
	})
}
