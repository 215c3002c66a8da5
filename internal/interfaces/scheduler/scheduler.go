package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// providerTimeout bounds how long listing the users to process may take.
const providerTimeout = 5 * time.Minute

// ScheduleTime is a time of day at which the scheduler runs.
type ScheduleTime struct {
	Hour   int
	Minute int
}

func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a 24-hour "HH:MM" time of day.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	return ScheduleTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// on returns st on the calendar day of day, in day's location.
func (st ScheduleTime) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), st.Hour, st.Minute, 0, 0, day.Location())
}

// JobProvider lists the jobs for one run.
type JobProvider func(context.Context) ([]Job, error)

// Scheduler submits the jobs of a provider to a worker pool at fixed times
// of day. It sleeps until the next slot rather than polling.
type Scheduler struct {
	workerPool    *WorkerPool
	scheduleTimes []ScheduleTime
	runOnStartup  bool
	jobProvider   JobProvider
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SchedulerConfig struct {
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
	JobProvider   JobProvider
}

func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if len(config.ScheduleTimes) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}

	times := make([]ScheduleTime, 0, len(config.ScheduleTimes))
	for _, raw := range config.ScheduleTimes {
		st, err := ParseScheduleTime(raw)
		if err != nil {
			return nil, err
		}
		times = append(times, st)
	}
	slices.SortFunc(times, func(a, b ScheduleTime) int {
		return cmp.Or(cmp.Compare(a.Hour, b.Hour), cmp.Compare(a.Minute, b.Minute))
	})
	times = slices.Compact(times)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		workerPool:    NewWorkerPool(config.WorkerCount, config.JobDelay, config.QueueSize),
		scheduleTimes: times,
		runOnStartup:  config.RunOnStartup,
		jobProvider:   config.JobProvider,
		now:           time.Now,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Start launches the worker pool and the schedule loop.
func (s *Scheduler) Start() {
	s.workerPool.Start()

	s.wg.Add(1)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	if s.runOnStartup {
		s.runJobs()
	}

	for {
		next := s.NextScheduledTime()
		slog.Info("scheduler waiting", "next_run", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runJobs()
		}
	}
}

// runJobs asks the provider for this run's jobs and queues them.
func (s *Scheduler) runJobs() {
	if s.jobProvider == nil {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, providerTimeout)
	defer cancel()

	jobs, err := s.jobProvider(ctx)
	if err != nil {
		slog.Error("scheduler failed to fetch jobs", "error", err)
		return
	}
	if len(jobs) == 0 {
		slog.Info("scheduler has no jobs to process")
		return
	}
	s.workerPool.SubmitBatch(jobs)
}

// Shutdown stops the schedule loop, then drains the worker pool. Both
// waits are bounded by timeout.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("timed out waiting for scheduler loop to stop")
	}

	s.workerPool.Shutdown(timeout)
	slog.Info("scheduler stopped")
}

// NextScheduledTime returns the first slot strictly after now.
func (s *Scheduler) NextScheduledTime() time.Time {
	now := s.now()
	for _, st := range s.scheduleTimes {
		if at := st.on(now); at.After(now) {
			return at
		}
	}
	return s.scheduleTimes[0].on(now.AddDate(0, 0, 1))
}
