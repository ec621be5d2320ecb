// Package scheduler runs the periodic quest sweeps on wall-clock schedules.
//
// Core concepts:
//   - Schedule: computes the next fire time after a given instant
//   - Daily / Weekly: "every day at HH:MM", "every <weekday> at HH:MM"
//   - Retry: a failed run is retried with exponential backoff
//   - Status: last run, last error and next run per job, read by health checks
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ─── Schedules ──────────────────────────────────────────────────────────────

// Schedule yields the next fire time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Daily fires once a day at Hour:Minute in Location.
type Daily struct {
	Hour, Minute int
	Location     *time.Location
}

// Next returns the first Hour:Minute strictly after t.
func (d Daily) Next(t time.Time) time.Time {
	loc := locOrUTC(d.Location)
	lt := t.In(loc)
	next := time.Date(lt.Year(), lt.Month(), lt.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !next.After(lt) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Weekly fires once a week on Day at Hour:Minute in Location.
type Weekly struct {
	Day          time.Weekday
	Hour, Minute int
	Location     *time.Location
}

// Next returns the first Day Hour:Minute strictly after t.
func (w Weekly) Next(t time.Time) time.Time {
	loc := locOrUTC(w.Location)
	lt := t.In(loc)
	offset := (int(w.Day) - int(lt.Weekday()) + 7) % 7
	next := time.Date(lt.Year(), lt.Month(), lt.Day()+offset, w.Hour, w.Minute, 0, 0, loc)
	if !next.After(lt) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// ParseWeekday parses an English weekday name ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// ─── Retry ──────────────────────────────────────────────────────────────────

// RetryConfig configures how failed runs are retried.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  30 * time.Second,
		MaxDelay:   10 * time.Minute,
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if c.MaxDelay > 0 && delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// ─── Jobs ───────────────────────────────────────────────────────────────────

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule Schedule
	Run      func(ctx context.Context) error
}

// JobStatus is a snapshot of one job's history.
type JobStatus struct {
	Name        string    `json:"name"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run,omitzero"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int64     `json:"runs"`
	Failures    int64     `json:"failures"`
	Running     bool      `json:"running"`
}

// ErrUnknownJob is returned by RunNow for an unregistered job name.
var ErrUnknownJob = errors.New("unknown job")

// ─── Scheduler ──────────────────────────────────────────────────────────────

// Scheduler fires registered jobs on their schedules until stopped.
// Runs of the same job never overlap.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*jobState
	order  []string
	retry  RetryConfig
	now    func() time.Time
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type jobState struct {
	job    Job
	run    sync.Mutex // serializes runs of this job
	status JobStatus
}

// New creates an empty scheduler. A nil logger disables logging.
func New(retry RetryConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		jobs:  make(map[string]*jobState),
		retry: retry,
		now:   time.Now,
		log:   log.Named("scheduler"),
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Run == nil {
		return errors.New("job needs a name, a schedule and a run func")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &jobState{
		job:    job,
		status: JobStatus{Name: job.Name, NextRun: job.Schedule.Next(s.now())},
	}
	s.order = append(s.order, job.Name)
	return nil
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.order {
		st := s.jobs[name]
		s.wg.Add(1)
		go s.loop(ctx, st)
	}
	s.log.Info("scheduler started", zap.Strings("jobs", s.order))
}

// Stop cancels every job loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, st *jobState) {
	defer s.wg.Done()
	for {
		next := st.job.Schedule.Next(s.now())
		s.mu.Lock()
		st.status.NextRun = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		_ = s.execute(ctx, st)
	}
}

// RunNow runs a job immediately, with retries, and returns its final error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, st)
}

// execute runs the job, retrying failures with backoff.
func (s *Scheduler) execute(ctx context.Context, st *jobState) error {
	st.run.Lock()
	defer st.run.Unlock()

	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		st.status.Running = true
		st.status.LastRun = s.now()
		st.status.Runs++
		s.mu.Unlock()

		err := st.job.Run(ctx)

		s.mu.Lock()
		st.status.Running = false
		if err == nil {
			st.status.LastSuccess = s.now()
			st.status.LastError = ""
		} else {
			st.status.Failures++
			st.status.LastError = err.Error()
		}
		s.mu.Unlock()

		if err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt >= s.retry.MaxRetries {
			s.log.Error("job failed", zap.String("job", st.job.Name), zap.Int("attempts", attempt+1), zap.Error(err))
			return err
		}

		delay := s.retry.Backoff(attempt + 1)
		s.log.Warn("job failed, retrying",
			zap.String("job", st.job.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Status returns a snapshot of every job in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name].status)
	}
	return out
}

// StatusOf returns one job's snapshot.
func (s *Scheduler) StatusOf(name string) (JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[name]
	if !ok {
		return JobStatus{}, false
	}
	return st.status, true
}
