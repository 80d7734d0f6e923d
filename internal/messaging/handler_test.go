package messaging

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvent(t *testing.T, reader *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if event != "" {
				return event, data
			}
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestHandler_StreamsQueuedAndLivePackets(t *testing.T) {
	h := NewHandler(10, zerolog.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()
	h.Start()
	defer h.Stop()

	h.SetAuthentication(&JobPacket{JobID: "job-1"})
	h.Send(&WeightsPacket{RunID: "run-1", Solver: "nonlinear", Weights: []float64{0.5, 0.5}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	assert.Equal(t, "job", event)
	assert.Contains(t, data, `"job_id":"job-1"`)

	event, data = readEvent(t, reader)
	assert.Equal(t, "weights", event)
	assert.Contains(t, data, `"weights":[0.5,0.5]`)

	h.Send(&StatusPacket{Status: "idle"})
	event, data = readEvent(t, reader)
	assert.Equal(t, "status", event)
	assert.Contains(t, data, `"status":"idle"`)

	assert.Equal(t, 0, h.Pending())
	assert.True(t, h.HasSubscribers())
	assert.Equal(t, "job-1", h.Job().JobID)
}

func TestHandler_DropsOldestWhenFull(t *testing.T) {
	h := NewHandler(2, zerolog.Nop())

	h.Send(&StatusPacket{Status: "a"})
	h.Send(&StatusPacket{Status: "b"})
	h.Send(&StatusPacket{Status: "c"})

	packets := h.drain()
	require.Len(t, packets, 2)
	assert.Equal(t, "b", packets[0].(*StatusPacket).Status)
	assert.Equal(t, "c", packets[1].(*StatusPacket).Status)
	assert.Equal(t, 0, h.Pending())
}

// brokenWriter accepts a fixed number of writes and fails the rest.
type brokenWriter struct {
	header http.Header
	writes int
	budget int
}

func (w *brokenWriter) Header() http.Header { return w.header }
func (w *brokenWriter) WriteHeader(int)     {}
func (w *brokenWriter) Flush()              {}

func (w *brokenWriter) Write(p []byte) (int, error) {
	if w.writes >= w.budget {
		return 0, errors.New("connection reset by peer")
	}
	w.writes++
	return len(p), nil
}

func TestHandler_RequeuesUndeliveredPackets(t *testing.T) {
	h := NewHandler(10, zerolog.Nop())
	h.Start()
	defer h.Stop()

	h.Send(&StatusPacket{Status: "a"})
	h.Send(&StatusPacket{Status: "b"})
	h.Send(&StatusPacket{Status: "c"})

	w := &brokenWriter{header: http.Header{}, budget: 1}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, 1, w.writes)
	packets := h.drain()
	require.Len(t, packets, 2)
	assert.Equal(t, "b", packets[0].(*StatusPacket).Status)
	assert.Equal(t, "c", packets[1].(*StatusPacket).Status)
}

func TestHandler_RequeueKeepsNewestWhenFull(t *testing.T) {
	h := NewHandler(2, zerolog.Nop())
	h.Send(&StatusPacket{Status: "c"})

	h.requeue([]Packet{&StatusPacket{Status: "a"}, &StatusPacket{Status: "b"}})

	packets := h.drain()
	require.Len(t, packets, 2)
	assert.Equal(t, "b", packets[0].(*StatusPacket).Status)
	assert.Equal(t, "c", packets[1].(*StatusPacket).Status)
}

func TestHandler_InitializeClearsState(t *testing.T) {
	h := NewHandler(0, zerolog.Nop())
	h.SetAuthentication(&JobPacket{JobID: "job-2"})
	require.Equal(t, 1, h.Pending())

	h.Initialize()

	assert.Equal(t, 0, h.Pending())
	assert.Nil(t, h.Job())
}

func TestHandler_NotStarted(t *testing.T) {
	h := NewHandler(4, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, h.HasSubscribers())
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(4, zerolog.Nop())
	h.Start()
	defer h.Stop()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/events", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandler_StartStopIdempotent(t *testing.T) {
	h := NewHandler(4, zerolog.Nop())
	assert.NotPanics(t, func() {
		h.Stop()
		h.Start()
		h.Start()
		h.Stop()
		h.Stop()
	})
}
