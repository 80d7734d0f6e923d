package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to marshal event")
	} else {
		m.log.Info().
			Str("event_type", string(eventType)).
			Str("module", module).
			RawJSON("event", eventJSON).
			Msg("Event emitted")
	}

	if m.bus != nil {
		m.bus.Publish(event)
	}
}

// EmitTyped emits an event with typed data. The data is flattened to a map
// through its JSON form so subscribers see the same shape as stream clients.
func (m *Manager) EmitTyped(eventType EventType, module string, data EventData) {
	var payload map[string]interface{}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to marshal event data")
			return
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			m.log.Error().Err(err).Str("event_type", string(eventType)).Msg("Failed to flatten event data")
			return
		}
	}
	m.Emit(eventType, module, payload)
}

// EmitError emits an error event
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	m.EmitTyped(ErrorOccurred, module, &ErrorEventData{Error: err.Error(), Context: context})
}
