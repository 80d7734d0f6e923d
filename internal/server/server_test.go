package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aristath/sharpe/internal/config"
	"github.com/aristath/sharpe/internal/di"
	"github.com/aristath/sharpe/internal/events"
	"github.com/aristath/sharpe/internal/modules/optimization"
	testingpkg "github.com/aristath/sharpe/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func setupServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()
	cfg := &config.Config{
		DataDir: t.TempDir(),
		Optimizer: config.OptimizerConfig{
			Solver:       optimization.SolverNonlinear,
			LowerBound:   0,
			UpperBound:   1,
			ReturnsModel: string(optimization.ReturnsModelMean),
			EMAPeriod:    optimization.DefaultEMAPeriod,
		},
	}

	container, _, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	s := New(Config{Log: zerolog.Nop(), Port: 0, DevMode: true, Container: container})
	return s, container
}

func decode(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func TestHandleHealth(t *testing.T) {
	s, _ := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec.Body.Bytes())
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "sharpe", body["service"])
	assert.Equal(t, Version, body["version"])
	assert.Contains(t, body, "system")
}

func TestSystemEndpoints(t *testing.T) {
	s, _ := setupServer(t)

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SystemStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, map[string]string{"runs": "ok", "cache": "ok"}, resp.Databases)
		assert.Equal(t, 1, resp.JobCount)
	})

	t.Run("database stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/system/database/stats", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp DatabaseStatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Databases, 2)
		assert.Equal(t, "runs", resp.Databases[0].Name)
		assert.Greater(t, resp.Databases[0].PageSize, int64(0))
	})

	t.Run("jobs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/system/jobs", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp JobsStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.TotalJobs)
		assert.Equal(t, "check_databases", resp.Jobs[0].Name)
		assert.Equal(t, di.CheckDatabasesSchedule, resp.Jobs[0].Schedule)
	})
}

func TestHandleRunJob(t *testing.T) {
	s, container := setupServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/check_databases/run", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool {
		last, err := container.JobHistory.Last("check_databases")
		return err == nil && last != nil
	}, 5*time.Second, 20*time.Millisecond)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/system/jobs/unknown/run", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOptimizerRoutesMounted(t *testing.T) {
	s, _ := setupServer(t)

	fixture := testingpkg.NewSectorFixture()
	body, err := json.Marshal(optimization.Request{
		Symbols:           fixture.Symbols,
		HistoricalReturns: fixture.Returns,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/optimizer/run", bytes.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/optimizer/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// readData returns the next SSE data payload
func readData(t *testing.T, reader *bufio.Reader) map[string]interface{} {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			return decode(t, []byte(strings.TrimPrefix(line, "data: ")))
		}
	}
}

func TestEventsStream_SSE(t *testing.T) {
	s, container := setupServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=OPTIMIZATION_FAILED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "connected", readData(t, reader)["type"])

	// Filtered out
	container.EventManager.EmitTyped(events.SystemStatusChanged, "test", &events.SystemStatusChangedData{Status: "degraded"})
	container.EventManager.EmitTyped(events.OptimizationFailed, "optimization", &events.OptimizationFailedData{
		Solver: "quadratic",
		Error:  "bad input",
	})

	msg := readData(t, reader)
	assert.Equal(t, string(events.OptimizationFailed), msg["type"])
	assert.Equal(t, "optimization", msg["module"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "bad input", data["error"])
}

func TestEventsStream_WebSocket(t *testing.T) {
	s, container := setupServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, first, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "connected", decode(t, first)["type"])

	container.EventManager.EmitTyped(events.SystemStatusChanged, "status_monitor", &events.SystemStatusChangedData{Status: "degraded"})

	msgType, raw, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, msgType)
	msg := decode(t, raw)
	assert.Equal(t, string(events.SystemStatusChanged), msg["type"])
	assert.Equal(t, "degraded", msg["data"].(map[string]interface{})["status"])
}

func TestShutdown_EndsEventStreams(t *testing.T) {
	s, _ := setupServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	assert.Equal(t, "connected", readData(t, reader)["type"])

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")
	_, _, err = conn.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Shutdown(ctx))

	// Both streams end well before the client deadline.
	_, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, ctx.Err())

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	require.NoError(t, ctx.Err())
}

func TestParseTypes(t *testing.T) {
	assert.Equal(t, events.AllEventTypes, parseTypes(""))
	assert.Equal(t,
		[]events.EventType{events.JobStarted, events.JobFailed},
		parseTypes("JOB_STARTED, JOB_FAILED,"),
	)
}

type recordingEmitter struct {
	data []*events.SystemStatusChangedData
}

func (r *recordingEmitter) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	r.data = append(r.data, data.(*events.SystemStatusChangedData))
}

func TestStatusMonitor_EmitsOnChange(t *testing.T) {
	_, container := setupServer(t)
	emitter := &recordingEmitter{}
	handlers := NewSystemHandlers(zerolog.Nop(), container.Databases(), nil)
	monitor := NewStatusMonitor(emitter, handlers, zerolog.Nop())

	monitor.checkStatus()
	monitor.checkStatus()
	require.Len(t, emitter.data, 1, "unchanged status is not re-emitted")
	assert.Equal(t, "healthy", emitter.data[0].Status)

	require.NoError(t, container.CacheDB.Close())
	monitor.checkStatus()
	require.Len(t, emitter.data, 2)
	assert.Equal(t, "degraded", emitter.data[1].Status)
	assert.Contains(t, emitter.data[1].Message, "cache")
}

func TestStatusMonitor_StartStop(t *testing.T) {
	_, container := setupServer(t)
	monitor := NewStatusMonitor(nil, NewSystemHandlers(zerolog.Nop(), container.Databases(), nil), zerolog.Nop())

	monitor.Start(time.Hour)
	monitor.Start(time.Hour)
	monitor.Stop()
	monitor.Stop()
}
