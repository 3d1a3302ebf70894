// Package daemon implements the long-running scheduler (C7): a single
// poller that lists the run store, dispatches created runs to a bounded
// worker pool, and runs the reconciler on start and periodically between
// polls. Grounded in the kit's own dispatch loop (internal/worker/dispatch.go)
// and worker pool idiom, generalized from a GitHub-issue queue to the run
// store's on-disk queue.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/silver2dream/agentrun/internal/reconciler"
	"github.com/silver2dream/agentrun/internal/runner"
	"github.com/silver2dream/agentrun/internal/runstore"
	"github.com/silver2dream/agentrun/internal/session"
)

// Daemon is the scheduler loop described in §4.7.
type Daemon struct {
	Store        *runstore.Store
	Runner       *runner.Runner
	Reconciler   *reconciler.Reconciler
	PollInterval time.Duration
	Workers      int
	Log          *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Config bundles the daemon's constructor inputs.
type Config struct {
	Store        *runstore.Store
	Runner       *runner.Runner
	Reconciler   *reconciler.Reconciler
	PollInterval time.Duration
	Workers      int
	Log          *slog.Logger
}

// New returns a Daemon ready to Run.
func New(cfg Config) *Daemon {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Daemon{
		Store:        cfg.Store,
		Runner:       cfg.Runner,
		Reconciler:   cfg.Reconciler,
		PollInterval: cfg.PollInterval,
		Workers:      cfg.Workers,
		Log:          cfg.Log,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Run blocks until Stop is called (or ctx is cancelled), running the
// scheduler loop described in §4.7.
func (d *Daemon) Run(ctx context.Context) {
	defer close(d.doneCh)

	if err := d.Reconciler.Run(); err != nil && d.Log != nil {
		d.Log.Error("initial reconciliation failed", "error", err)
	}

	slots := make(chan struct{}, d.Workers)
	var wg sync.WaitGroup

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-d.stopCh:
			wg.Wait()
			return
		case <-ticker.C:
			d.pollOnce(ctx, slots, &wg)
			if err := d.Reconciler.Run(); err != nil && d.Log != nil {
				d.Log.Error("periodic reconciliation failed", "error", err)
			}
		}
	}
}

// pollOnce lists runs, and for each one whose session is created, attempts a
// non-blocking slot acquisition before dispatching to a worker goroutine.
func (d *Daemon) pollOnce(ctx context.Context, slots chan struct{}, wg *sync.WaitGroup) {
	runs, err := d.Store.ListRuns()
	if err != nil {
		if d.Log != nil {
			d.Log.Error("list runs failed", "error", err)
		}
		return
	}

	for _, sess := range runs {
		if sess.State != session.Created {
			continue
		}

		select {
		case slots <- struct{}{}:
		default:
			continue // all N slots occupied; try again next tick
		}

		wg.Add(1)
		go func(runID string) {
			defer wg.Done()
			defer func() { <-slots }()
			if err := d.Runner.Run(ctx, runID); err != nil && d.Log != nil {
				d.Log.Warn("run finished with error", "run_id", runID, "error", err)
			}
		}(sess.RunID)
	}
}

// Stop stops accepting new work and waits (bounded by grace) for in-flight
// workers to finish, per §4.7 step 3.
func (d *Daemon) Stop(grace time.Duration) {
	d.stopOnce.Do(func() { close(d.stopCh) })

	select {
	case <-d.doneCh:
	case <-time.After(grace):
	}
}
