// Package health provides periodic health checks with auto-recovery.
// The daemon runs the database and sweep-freshness checks every minute.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sololeveling/lifesystem/internal/infra/metrics"
	"github.com/sololeveling/lifesystem/internal/infra/scheduler"
)

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	Recovered bool      `json:"recovered,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Pinger is satisfied by the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobSource exposes scheduler job history.
type JobSource interface {
	StatusOf(name string) (scheduler.JobStatus, bool)
	RunNow(ctx context.Context, name string) error
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewChecker creates a health checker with the database check and, when
// dataDir is set, the data directory check.
func NewChecker(db Pinger, dataDir string, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Checker{
		interval: 60 * time.Second,
		timeout:  5 * time.Second,
		log:      log.Named("health"),
	}
	c.Add(Check{
		Name:    "database",
		CheckFn: db.Ping,
	})
	if dataDir != "" {
		c.Add(Check{
			Name: "data_dir",
			CheckFn: func(context.Context) error {
				return checkDataDir(dataDir)
			},
		})
	}
	return c
}

// Add registers another check. Call before Run.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// SetInterval overrides the check interval. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	// Run immediately on start
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check, attempting recovery for failing ones, and
// returns the fresh statuses.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		s := Status{Name: check.Name, CheckedAt: time.Now()}
		if err := c.probe(ctx, check.CheckFn); err != nil {
			s.Error = err.Error()
			c.log.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			// Attempt recovery
			if check.RecoverFn != nil {
				if rerr := check.RecoverFn(ctx); rerr == nil && c.probe(ctx, check.CheckFn) == nil {
					s.Recovered = true
					s.Error = ""
					metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
					c.log.Info("health check recovered", zap.String("check", check.Name))
				}
			}
		}
		s.Healthy = s.Error == ""
		if s.Healthy {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		} else {
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()

	out := make([]Status, len(statuses))
	copy(out, statuses)
	return out
}

func (c *Checker) probe(ctx context.Context, fn func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return fn(ctx)
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

// SweepFreshness reports a job unhealthy when its last run failed or its
// last success is older than maxAge. Recovery reruns the job.
func SweepFreshness(jobs JobSource, job string, maxAge time.Duration) Check {
	return Check{
		Name: "sweep_" + job,
		CheckFn: func(context.Context) error {
			st, ok := jobs.StatusOf(job)
			if !ok {
				return fmt.Errorf("job %s not registered", job)
			}
			return checkFreshness(st, maxAge, time.Now())
		},
		RecoverFn: func(ctx context.Context) error {
			return jobs.RunNow(ctx, job)
		},
	}
}

func checkFreshness(st scheduler.JobStatus, maxAge time.Duration, now time.Time) error {
	if st.Running {
		return nil
	}
	if st.LastError != "" {
		return fmt.Errorf("last %s run failed: %s", st.Name, st.LastError)
	}
	if !st.LastSuccess.IsZero() && now.Sub(st.LastSuccess) > maxAge {
		return fmt.Errorf("%s has not succeeded since %s", st.Name, st.LastSuccess.Format(time.RFC3339))
	}
	return nil
}

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // created on first open
		}
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
