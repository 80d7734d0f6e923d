package server

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/sharpe/internal/events"
	"github.com/rs/zerolog"
)

// StatusEmitter publishes status change events
type StatusEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// StatusMonitor periodically checks system status and emits an event when it changes
type StatusMonitor struct {
	eventManager   StatusEmitter
	systemHandlers *SystemHandlers
	log            zerolog.Logger

	mu         sync.Mutex
	lastStatus string
	stop       chan struct{}
	done       chan struct{}
}

// NewStatusMonitor creates a new status monitor
func NewStatusMonitor(eventManager StatusEmitter, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		eventManager:   eventManager,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
	}
}

// Start begins periodic status monitoring. Calling Start twice is a no-op.
func (m *StatusMonitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.monitor(interval, m.stop, m.done)
}

// Stop ends monitoring and waits for the loop to exit
func (m *StatusMonitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *StatusMonitor) monitor(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial check
	m.checkStatus()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.checkStatus()
		}
	}
}

// checkStatus emits SystemStatusChanged when the overall status differs from the last check
func (m *StatusMonitor) checkStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snapshot, err := m.systemHandlers.GetSystemStatusSnapshot(ctx)

	m.mu.Lock()
	changed := snapshot.Status != m.lastStatus
	m.lastStatus = snapshot.Status
	m.mu.Unlock()

	if !changed {
		return
	}

	data := &events.SystemStatusChangedData{Status: snapshot.Status}
	if err != nil {
		data.Message = err.Error()
	}

	m.log.Info().Str("status", snapshot.Status).Msg("System status changed")
	if m.eventManager != nil {
		m.eventManager.EmitTyped(events.SystemStatusChanged, "status_monitor", data)
	}
}
