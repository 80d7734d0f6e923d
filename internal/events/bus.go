package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(event *Event)

// Bus fans events out to subscribers by type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType]map[uint64]Handler
	nextID   uint64
	log      zerolog.Logger
}

// NewBus creates an empty event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[uint64]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers handler for eventType and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[eventType], id)
		})
	}
}

// SubscribeAll registers handler for every type in types and returns a
// function that removes all of the subscriptions.
func (b *Bus) SubscribeAll(types []EventType, handler Handler) func() {
	unsubscribes := make([]func(), 0, len(types))
	for _, t := range types {
		unsubscribes = append(unsubscribes, b.Subscribe(t, handler))
	}
	return func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}
}

// Publish delivers event to every subscriber of its type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Int("subscribers", len(handlers)).
		Msg("Publishing event")

	for _, h := range handlers {
		h(event)
	}
}

// SubscriberCount returns the number of handlers registered for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
