package messaging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultQueueCapacity bounds the number of undelivered packets.
const DefaultQueueCapacity = 256

const heartbeatInterval = 30 * time.Second

// Handler is a bounded FIFO of packets drained by SSE clients. When the queue
// is full the oldest packet is dropped.
type Handler struct {
	mu          sync.Mutex
	queue       []Packet
	capacity    int
	dropped     int
	job         *JobPacket
	started     bool
	stop        chan struct{}
	notify      chan struct{}
	subscribers int
	log         zerolog.Logger
}

// NewHandler creates a handler. A capacity below one uses DefaultQueueCapacity.
func NewHandler(capacity int, log zerolog.Logger) *Handler {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	h := &Handler{
		capacity: capacity,
		log:      log.With().Str("component", "messaging").Logger(),
	}
	h.Initialize()
	return h
}

// Initialize clears the queue and the current job.
func (h *Handler) Initialize() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.queue = make([]Packet, 0, h.capacity)
	h.dropped = 0
	h.job = nil
	if h.notify == nil {
		h.notify = make(chan struct{}, 1)
	}
}

// SetAuthentication records the job the session belongs to and queues it so
// clients learn which job they are attached to.
func (h *Handler) SetAuthentication(job *JobPacket) {
	if job.Timestamp.IsZero() {
		job.Timestamp = time.Now()
	}
	h.mu.Lock()
	h.job = job
	h.mu.Unlock()

	h.log.Info().Str("job_id", job.JobID).Msg("Job attached to session")
	h.Send(job)
}

// Job returns the current job, or nil.
func (h *Handler) Job() *JobPacket {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job
}

// Send queues a packet.
func (h *Handler) Send(packet Packet) {
	h.mu.Lock()
	if len(h.queue) >= h.capacity {
		h.queue = h.queue[1:]
		h.dropped++
		h.log.Warn().
			Str("packet_type", string(packet.Type())).
			Int("dropped", h.dropped).
			Msg("Packet queue full, dropping oldest packet")
	}
	h.queue = append(h.queue, packet)
	notify := h.notify
	h.mu.Unlock()

	select {
	case notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued packets.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// Start allows clients to drain the queue.
func (h *Handler) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.stop = make(chan struct{})
	h.log.Info().Msg("Messaging started")
}

// Stop disconnects clients. Queued packets are kept until the next Start.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return
	}
	h.started = false
	close(h.stop)
	h.log.Info().Msg("Messaging stopped")
}

// HasSubscribers reports whether any client is draining the queue.
func (h *Handler) HasSubscribers() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribers > 0
}

func (h *Handler) drain() []Packet {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil
	}
	packets := h.queue
	h.queue = make([]Packet, 0, h.capacity)
	return packets
}

// requeue puts undelivered packets back at the front of the queue. When that
// overflows the capacity the oldest packets are dropped.
func (h *Handler) requeue(packets []Packet) {
	h.mu.Lock()
	defer h.mu.Unlock()

	queue := make([]Packet, 0, len(packets)+len(h.queue))
	queue = append(queue, packets...)
	queue = append(queue, h.queue...)
	if over := len(queue) - h.capacity; over > 0 {
		queue = queue[over:]
		h.dropped += over
		h.log.Warn().Int("dropped", h.dropped).Msg("Packet queue full, dropping oldest packet")
	}
	h.queue = queue
}

// ServeHTTP handles GET /events: every queued packet is written as
//
//	event: <type>
//	data: <json>
//
// and the connection stays open for packets sent later.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		http.Error(w, "Messaging not started", http.StatusServiceUnavailable)
		return
	}
	stop := h.stop
	notify := h.notify
	h.subscribers++
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.subscribers--
		h.mu.Unlock()
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.log.Info().Str("remote_addr", r.RemoteAddr).Msg("Client connected to packet stream")

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		packets := h.drain()
		for i, packet := range packets {
			data, err := json.Marshal(packet)
			if err != nil {
				h.log.Error().Err(err).Str("packet_type", string(packet.Type())).Msg("Failed to encode packet")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", packet.Type(), data); err != nil {
				// The client is gone; keep the rest for the next one.
				h.log.Warn().Err(err).Int("requeued", len(packets)-i).Msg("Failed to write packet")
				h.requeue(packets[i:])
				return
			}
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			h.log.Info().Msg("Client disconnected from packet stream")
			return
		case <-stop:
			return
		case <-notify:
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
		}
	}
}
