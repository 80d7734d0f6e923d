package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/sharpe/internal/database"
	"github.com/aristath/sharpe/internal/events"
	testingpkg "github.com/aristath/sharpe/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	err  error
	mu   sync.Mutex
	runs int
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs++
	return j.err
}

func (j *stubJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runs
}

type recordedEvent struct {
	eventType events.EventType
	data      events.EventData
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *recordingEmitter) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{eventType: eventType, data: data})
}

func setupCacheDB(t *testing.T) *database.DB {
	return testingpkg.NewTestDB(t, "cache")
}

func TestScheduler_AddJobValidation(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@every 1h", &stubJob{name: "a"}))
	assert.Error(t, s.AddJob("@every 1h", &stubJob{name: "a"}), "duplicate names are rejected")
	assert.Error(t, s.AddJob("not a schedule", &stubJob{name: "b"}))
}

func TestScheduler_RunNowRecordsAndEmits(t *testing.T) {
	s := New(zerolog.Nop())
	history := NewHistoryRepository(setupCacheDB(t).Conn(), zerolog.Nop())
	emitter := &recordingEmitter{}
	s.SetHistory(history)
	s.SetEventManager(emitter)

	ok := &stubJob{name: "ok"}
	failing := &stubJob{name: "failing", err: errors.New("no data")}
	require.NoError(t, s.AddJob("@every 1h", ok))
	require.NoError(t, s.AddJob("@every 1h", failing))

	require.NoError(t, s.RunNow("ok"))
	assert.EqualError(t, s.RunNow("failing"), "no data")
	assert.ErrorIs(t, s.RunNow("missing"), ErrJobNotFound)
	assert.Equal(t, 1, ok.count())

	require.Len(t, emitter.events, 4)
	assert.Equal(t, events.JobStarted, emitter.events[0].eventType)
	assert.Equal(t, events.JobCompleted, emitter.events[1].eventType)
	assert.Equal(t, events.JobStarted, emitter.events[2].eventType)
	assert.Equal(t, events.JobFailed, emitter.events[3].eventType)
	failed := emitter.events[3].data.(*events.JobStatusData)
	assert.Equal(t, "failing", failed.JobName)
	assert.Equal(t, "no data", failed.Error)

	last, err := history.Last("failing")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, JobFailedStatus, last.Status)
	assert.Equal(t, "no data", last.Error)

	statuses := s.Jobs()
	require.Len(t, statuses, 2)
	assert.Equal(t, "failing", statuses[0].Name)
	assert.Equal(t, "@every 1h", statuses[0].Schedule)
	require.NotNil(t, statuses[1].LastRun)
	assert.Equal(t, JobCompletedStatus, statuses[1].LastRun.Status)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	job := &stubJob{name: "tick"}
	require.NoError(t, s.AddJob("@every 1s", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.count() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestHistoryRepository_RecentAndPrune(t *testing.T) {
	history := NewHistoryRepository(setupCacheDB(t).Conn(), zerolog.Nop())
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, history.Record(JobRecord{
			JobName:   "optimize_file",
			Status:    JobCompletedStatus,
			Duration:  time.Duration(i+1) * time.Second,
			StartedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}))
	}

	recent, err := history.Recent("optimize_file", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, base.Add(48*time.Hour), recent[0].StartedAt)
	assert.Equal(t, 3*time.Second, recent[0].Duration)
	assert.Empty(t, recent[0].Error)

	deleted, err := history.Prune(base.Add(36 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	none, err := history.Last("other")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCheckDatabasesJob(t *testing.T) {
	cache := setupCacheDB(t)
	runs := testingpkg.NewTestDB(t, "runs")

	history := NewHistoryRepository(cache.Conn(), zerolog.Nop())
	require.NoError(t, history.Record(JobRecord{
		JobName:   "old",
		Status:    JobCompletedStatus,
		StartedAt: time.Now().Add(-60 * 24 * time.Hour),
	}))

	job := NewCheckDatabasesJob([]*database.DB{runs, cache, nil}, history, zerolog.Nop())
	assert.Equal(t, "check_databases", job.Name())
	require.NoError(t, job.Run())

	last, err := history.Last("old")
	require.NoError(t, err)
	assert.Nil(t, last, "old history is pruned")
}
