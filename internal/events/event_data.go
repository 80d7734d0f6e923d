package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OptimizationStartedData contains data for OptimizationStarted events
type OptimizationStartedData struct {
	Solver  string   `json:"solver"`
	Assets  int      `json:"assets"`
	Periods int      `json:"periods"`
	Symbols []string `json:"symbols,omitempty"`
}

// EventType returns the event type for OptimizationStartedData
func (d *OptimizationStartedData) EventType() EventType {
	return OptimizationStarted
}

// OptimizationCompletedData contains data for OptimizationCompleted events
type OptimizationCompletedData struct {
	RunID    string    `json:"run_id"`
	Solver   string    `json:"solver"`
	Status   string    `json:"status"`
	Fallback bool      `json:"fallback"`
	Weights  []float64 `json:"weights"`
	Sharpe   float64   `json:"sharpe"`
	Duration float64   `json:"duration"`
}

// EventType returns the event type for OptimizationCompletedData
func (d *OptimizationCompletedData) EventType() EventType {
	return OptimizationCompleted
}

// OptimizationFailedData contains data for OptimizationFailed events
type OptimizationFailedData struct {
	Solver string `json:"solver"`
	Error  string `json:"error"`
}

// EventType returns the event type for OptimizationFailedData
func (d *OptimizationFailedData) EventType() EventType {
	return OptimizationFailed
}

// SystemStatusChangedData contains data for SystemStatusChanged events
type SystemStatusChangedData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// EventType returns the event type for SystemStatusChangedData
func (d *SystemStatusChangedData) EventType() EventType {
	return SystemStatusChanged
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobName   string    `json:"job_name"`
	Status    string    `json:"status"` // "started", "completed", "failed"
	Error     string    `json:"error,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	var eventData EventData
	switch aux.Type {
	case OptimizationStarted:
		eventData = &OptimizationStartedData{}
	case OptimizationCompleted:
		eventData = &OptimizationCompletedData{}
	case OptimizationFailed:
		eventData = &OptimizationFailedData{}
	case SystemStatusChanged:
		eventData = &SystemStatusChangedData{}
	case ErrorOccurred:
		eventData = &ErrorEventData{}
	case JobStarted, JobCompleted, JobFailed:
		eventData = &JobStatusData{}
	default:
		eventData = &GenericEventData{Type: aux.Type}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return err
	}
	e.Data = eventData
	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
