// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aristath/sharpe/internal/events"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// EventManagerInterface defines the contract for event emission
type EventManagerInterface interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// JobStatus describes a registered job
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	Next     time.Time  `json:"next"`
	Prev     time.Time  `json:"prev"`
	LastRun  *JobRecord `json:"last_run,omitempty"`
}

type registeredJob struct {
	job      Job
	schedule string
	entryID  cron.EntryID
}

// Scheduler manages background jobs
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.RWMutex
	jobs    map[string]registeredJob
	history *HistoryRepository
	events  EventManagerInterface
	log     zerolog.Logger
}

// New creates a new scheduler. Schedules use six fields with seconds first.
// A job still running when its next tick fires is skipped for that tick.
func New(log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: l})),
		),
		jobs: make(map[string]registeredJob),
		log:  l,
	}
}

// SetHistory sets the repository job executions are recorded to
func (s *Scheduler) SetHistory(history *HistoryRepository) {
	s.history = history
}

// SetEventManager sets the emitter for job lifecycle events
func (s *Scheduler) SetEventManager(em EventManagerInterface) {
	s.events = em
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "0 0 9 * * MON-FRI"  - 9 AM weekdays
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s is already registered", job.Name())
	}

	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.execute(job)
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
	}
	s.jobs[job.Name()] = registeredJob{job: job, schedule: schedule, entryID: id}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	registered, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(registered.job)
}

// Jobs returns the registered jobs sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for name, registered := range s.jobs {
		entry := s.cron.Entry(registered.entryID)
		status := JobStatus{
			Name:     name,
			Schedule: registered.schedule,
			Next:     entry.Next,
			Prev:     entry.Prev,
		}
		if s.history != nil {
			if last, err := s.history.Last(name); err != nil {
				s.log.Warn().Err(err).Str("job", name).Msg("Failed to read job history")
			} else {
				status.LastRun = last
			}
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func (s *Scheduler) execute(job Job) error {
	start := time.Now()
	s.emit(events.JobStarted, &events.JobStatusData{
		JobName:   job.Name(),
		Status:    "started",
		Timestamp: start,
	})
	s.log.Debug().Str("job", job.Name()).Msg("Running job")

	err := job.Run()
	duration := time.Since(start)

	record := JobRecord{
		JobName:   job.Name(),
		Status:    JobCompletedStatus,
		Duration:  duration,
		StartedAt: start,
	}
	data := &events.JobStatusData{
		JobName:   job.Name(),
		Status:    "completed",
		Duration:  duration.Seconds(),
		Timestamp: time.Now(),
	}
	if err != nil {
		record.Status = JobFailedStatus
		record.Error = err.Error()
		data.Status = "failed"
		data.Error = err.Error()
		s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", job.Name()).Dur("duration", duration).Msg("Job completed")
	}

	if s.history != nil {
		if herr := s.history.Record(record); herr != nil {
			s.log.Warn().Err(herr).Str("job", job.Name()).Msg("Failed to record job history")
		}
	}
	s.emit(data.EventType(), data)
	return err
}

func (s *Scheduler) emit(eventType events.EventType, data events.EventData) {
	if s.events != nil {
		s.events.EmitTyped(eventType, "scheduler", data)
	}
}

// cronLogger adapts zerolog to the cron.Logger interface
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
