// Package jobs runs the periodic background work: the claim expiry sweep and
// the alert_update heartbeat. Jobs are scheduled with robfig/cron; a run that
// is still in progress when the next tick fires is skipped.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	robcron "github.com/robfig/cron/v3"
)

// Func is one unit of background work. ctx is cancelled by Stop.
type Func func(ctx context.Context) error

// Runner owns a cron scheduler and the context its jobs run under.
type Runner struct {
	cron   *robcron.Cron
	parser robcron.Parser
	logf   func(format string, args ...any)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	names   map[robcron.EntryID]string
	started bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogf routes job failure lines. Defaults to stderr.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(r *Runner) { r.logf = logf }
}

// NewRunner creates a stopped runner. Schedules are evaluated in loc.
func NewRunner(loc *time.Location, opts ...Option) *Runner {
	if loc == nil {
		loc = time.Local
	}
	r := &Runner{
		parser: robcron.NewParser(robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor),
		names:  make(map[robcron.EntryID]string),
		logf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	logger := robcron.PrintfLogger(printfFunc(r.logf))
	r.cron = robcron.New(
		robcron.WithLocation(loc),
		robcron.WithParser(r.parser),
		robcron.WithChain(robcron.Recover(logger), robcron.SkipIfStillRunning(logger)),
		robcron.WithLogger(robcron.DiscardLogger),
	)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Every schedules fn at a fixed interval. Intervals below one second are
// rejected; cron's resolution is one second.
func (r *Runner) Every(name string, interval time.Duration, fn Func) error {
	if interval < time.Second {
		return fmt.Errorf("job %s: interval must be at least 1s (got %v)", name, interval)
	}
	return r.Add(name, "@every "+interval.String(), fn)
}

// Add schedules fn with a cron expression or descriptor, e.g. "*/5 * * * *"
// or "@every 30s".
func (r *Runner) Add(name, spec string, fn Func) error {
	if fn == nil {
		return fmt.Errorf("job %s: nil func", name)
	}
	schedule, err := r.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("job %s: parse schedule %q: %w", name, spec, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.cron.Schedule(schedule, robcron.FuncJob(func() {
		r.run(name, fn)
	}))
	r.names[id] = name
	return nil
}

func (r *Runner) run(name string, fn Func) {
	if r.ctx.Err() != nil {
		return
	}
	if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logf("warning: job %s failed: %v", name, err)
	}
}

// Jobs returns the scheduled job names with their next run time.
func (r *Runner) Jobs() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.names))
	for _, e := range r.cron.Entries() {
		out[r.names[e.ID]] = e.Next
	}
	return out
}

// Start begins scheduling. Calling Start twice is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.cron.Start()
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs to stop: %w", ctx.Err())
	}
}

// printfFunc adapts a Logf to the Printf interface cron's logger expects.
type printfFunc func(format string, args ...any)

func (f printfFunc) Printf(format string, args ...any) {
	f(format, args...)
}
