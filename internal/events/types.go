// Package events provides the in-process event bus and typed event payloads.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	OptimizationStarted   EventType = "OPTIMIZATION_STARTED"
	OptimizationCompleted EventType = "OPTIMIZATION_COMPLETED"
	OptimizationFailed    EventType = "OPTIMIZATION_FAILED"
	SystemStatusChanged   EventType = "SYSTEM_STATUS_CHANGED"
	ErrorOccurred         EventType = "ERROR_OCCURRED"

	// Scheduled job lifecycle
	JobStarted   EventType = "JOB_STARTED"
	JobCompleted EventType = "JOB_COMPLETED"
	JobFailed    EventType = "JOB_FAILED"
)

// AllEventTypes lists every event type streamed to clients.
var AllEventTypes = []EventType{
	OptimizationStarted,
	OptimizationCompleted,
	OptimizationFailed,
	SystemStatusChanged,
	ErrorOccurred,
	JobStarted,
	JobCompleted,
	JobFailed,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
