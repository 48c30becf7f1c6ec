// Package jobs runs the periodic maintenance work of the API process on a
// cron schedule: the rolling session sweep and the completion recompute.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vedarc.org/internal/obs"
)

// Job is one scheduled unit of work. Run reports how many records it touched.
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Sweeper deactivates idle sessions.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Recalculator recomputes course completion for every active student.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (int, error)
}

// SessionSweep builds the job that retires sessions idle past their TTL.
func SessionSweep(s Sweeper, schedule string) Job {
	return Job{Name: "session_sweep", Schedule: schedule, Timeout: time.Minute, Run: s.SweepExpired}
}

// CompletionRecalc builds the job that re-derives completion percentages.
func CompletionRecalc(r Recalculator, schedule string) Job {
	return Job{Name: "completion_recalc", Schedule: schedule, Timeout: 5 * time.Minute, Run: r.RecalculateAll}
}

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron *cron.Cron
	base context.Context

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates an idle scheduler; base is the parent of every run's context.
func New(base context.Context) *Scheduler {
	if base == nil {
		base = context.Background()
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{}))),
		base: base,
		jobs: make(map[string]Job),
	}
}

// Add registers j. An empty schedule disables the job.
func (s *Scheduler) Add(j Job) error {
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" || j.Run == nil {
		return fmt.Errorf("job needs a name and a run func")
	}
	if strings.TrimSpace(j.Schedule) == "" {
		obs.Info("job_disabled", map[string]any{"job": j.Name})
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[j.Name]; dup {
		return fmt.Errorf("job %s already registered", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Schedule, func() { s.run(j) }); err != nil {
		return fmt.Errorf("schedule %s (%q): %w", j.Name, j.Schedule, err)
	}
	s.jobs[j.Name] = j
	return nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	n := len(s.jobs)
	s.mu.Unlock()
	obs.Info("jobs_started", map[string]any{"jobs": n})
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) (int, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown job %q", name)
	}
	return s.run(j)
}

func (s *Scheduler) run(j Job) (int, error) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(s.base, timeout)
	defer cancel()

	start := time.Now()
	n, err := j.Run(ctx)
	fields := map[string]any{
		"job":         j.Name,
		"affected":    n,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err
		obs.JobRuns.WithLabelValues(j.Name, "failed").Inc()
		obs.Error("job_failed", fields)
		return n, err
	}
	obs.JobRuns.WithLabelValues(j.Name, "ok").Inc()
	obs.Info("job_complete", fields)
	return n, nil
}

// cronLogger routes cron's own diagnostics into the JSON log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	obs.Info("cron_"+strings.ReplaceAll(msg, " ", "_"), pairs(keysAndValues))
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := pairs(keysAndValues)
	fields["error"] = err
	obs.Error("cron_"+strings.ReplaceAll(msg, " ", "_"), fields)
}

func pairs(kv []any) map[string]any {
	out := make(map[string]any, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
