package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/utils"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	streamBufferSize  = 100
	heartbeatInterval = 30 * time.Second
	wsWriteTimeout    = 5 * time.Second
)

// EventsStreamHandler streams bus events to clients over SSE or a websocket.
type EventsStreamHandler struct {
	eventBus  *events.Bus
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewEventsStreamHandler creates a new events stream handler.
func NewEventsStreamHandler(eventBus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	return &EventsStreamHandler{
		eventBus: eventBus,
		done:     make(chan struct{}),
		log:      log.With().Str("component", "events_stream").Logger(),
	}
}

// Close ends every open stream. It is safe to call more than once.
func (h *EventsStreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// parseTypes turns a comma separated ?types= filter into event types.
// An empty filter selects every event type.
func parseTypes(filter string) []events.EventType {
	names := utils.ParseCSV(filter)
	if names == nil {
		return events.AllEventTypes
	}
	types := make([]events.EventType, len(names))
	for i, name := range names {
		types[i] = events.EventType(name)
	}
	return types
}

// subscribe forwards matching events into a buffered channel. Events are
// dropped when the client falls behind.
func (h *EventsStreamHandler) subscribe(types []events.EventType) (<-chan *events.Event, func()) {
	eventChan := make(chan *events.Event, streamBufferSize)
	unsubscribe := h.eventBus.SubscribeAll(types, func(event *events.Event) {
		select {
		case eventChan <- event:
		default:
			h.log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event channel full, dropping event")
		}
	})
	return eventChan, unsubscribe
}

// ServeHTTP handles GET /api/events/stream requests (SSE).
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	typesFilter := r.URL.Query().Get("types")
	eventChan, unsubscribe := h.subscribe(parseTypes(typesFilter))
	defer unsubscribe()

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to event stream")

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from event stream")
			return

		case <-h.done:
			return

		case event := <-eventChan:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(eventMessage(event)))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

// ServeWebSocket handles GET /api/events/ws requests. Messages have the same
// shape as the SSE data frames.
func (h *EventsStreamHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS is open on every other route
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	typesFilter := r.URL.Query().Get("types")
	eventChan, unsubscribe := h.subscribe(parseTypes(typesFilter))
	defer unsubscribe()

	// Clients only receive; CloseRead handles control frames and cancels
	// ctx when the peer goes away
	ctx := conn.CloseRead(r.Context())

	h.log.Info().Str("types_filter", typesFilter).Msg("Client connected to websocket event stream")

	if err := h.writeWS(ctx, conn, map[string]interface{}{
		"type":    "connected",
		"message": "Connected to event stream",
	}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from websocket event stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case <-h.done:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case event := <-eventChan:
			if err := h.writeWS(ctx, conn, eventMessage(event)); err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed")
				return
			}

		case <-heartbeat.C:
			if err := conn.Ping(ctx); err != nil {
				h.log.Debug().Err(err).Msg("Websocket ping failed")
				return
			}
		}
	}
}

func (h *EventsStreamHandler) writeWS(ctx context.Context, conn *websocket.Conn, message map[string]interface{}) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, []byte(h.encode(message)))
}

func eventMessage(event *events.Event) map[string]interface{} {
	return map[string]interface{}{
		"type":      string(event.Type),
		"module":    event.Module,
		"timestamp": event.Timestamp.Format(time.RFC3339),
		"data":      event.Data,
	}
}

// encode encodes a message map to a JSON string.
func (h *EventsStreamHandler) encode(message map[string]interface{}) string {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
