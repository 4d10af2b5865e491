// Package syncrunner schedules reconciler cycles and triggers the archival
// sweeper after each successful one.
package syncrunner

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verdikta/verdikta-applications-sub002/internal/observability/statsd"
	"github.com/verdikta/verdikta-applications-sub002/internal/service"
)

// Syncer runs one reconciliation cycle.
type Syncer interface {
	SyncCycle(ctx context.Context) (*service.CycleStats, error)
}

// ArchiveSweeper runs one archival pass.
type ArchiveSweeper interface {
	Sweep(ctx context.Context) (*service.SweepStats, error)
}

// Options groups dependencies for Runner.
type Options struct {
	Syncer      Syncer         // Required: reconciler
	Sweeper     ArchiveSweeper // Optional: archival sweeper, triggered after success
	Interval    time.Duration  // Optional: cycle cadence, default 2m
	MaxFailures int            // Optional: consecutive failures before self-disable, default 5
	Logger      *slog.Logger   // Optional: structured logger
	Metrics     statsd.Sink    // Optional: metrics sink
}

// Runner fires reconciler cycles on a ticker. After the configured number of
// consecutive failures it stops firing until a manual trigger re-enables it.
type Runner struct {
	syncer      Syncer
	sweeper     ArchiveSweeper
	interval    time.Duration
	maxFailures int
	logger      *slog.Logger
	metrics     statsd.Sink

	failures atomic.Int32
	disabled atomic.Bool
	sweepWG  sync.WaitGroup
}

// New constructs the runner.
func New(opts Options) (*Runner, error) {
	if opts.Syncer == nil {
		return nil, errors.New("syncer is required")
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	maxFailures := opts.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sync_runner")
	}

	return &Runner{
		syncer:      opts.Syncer,
		sweeper:     opts.Sweeper,
		interval:    interval,
		maxFailures: maxFailures,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// Run fires cycles until the context is cancelled. Returns nil on graceful
// shutdown.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting sync runner",
			"interval", r.interval, "max_failures", r.maxFailures)
	}

	r.waitWithJitter(ctx)
	if ctx.Err() == nil {
		r.runOnce(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.InfoContext(ctx, "sync runner stopping", "reason", ctx.Err())
			}
			r.sweepWG.Wait()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if r.disabled.Load() {
				if r.logger != nil {
					r.logger.WarnContext(ctx, "sync runner disabled, waiting for manual trigger")
				}
				continue
			}
			r.runOnce(ctx)
		}
	}
}

// TriggerSync runs a cycle immediately and re-enables a self-disabled runner.
// Serves manual "sync now" requests.
func (r *Runner) TriggerSync(ctx context.Context) (*service.CycleStats, error) {
	if r.disabled.CompareAndSwap(true, false) {
		r.failures.Store(0)
		if r.logger != nil {
			r.logger.InfoContext(ctx, "sync runner re-enabled by manual trigger")
		}
	}
	stats, err := r.syncer.SyncCycle(ctx)
	if err == nil && stats != nil && stats.Ran {
		r.triggerSweep(ctx)
	}
	return stats, err
}

// Disabled reports whether the runner stopped firing after repeated failures.
func (r *Runner) Disabled() bool {
	return r.disabled.Load()
}

func (r *Runner) runOnce(ctx context.Context) {
	stats, err := r.syncer.SyncCycle(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		failures := r.failures.Add(1)
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "sync cycle failed",
				"consecutive_failures", failures, "error", err)
		}
		if int(failures) >= r.maxFailures {
			r.disabled.Store(true)
			if r.metrics != nil {
				r.metrics.Count("sync.self_disabled", 1, nil)
			}
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "sync runner self-disabled after repeated failures",
					"consecutive_failures", failures)
			}
		}
		return
	}

	r.failures.Store(0)
	if stats != nil && stats.Ran {
		r.triggerSweep(ctx)
	}
}

// triggerSweep runs the sweeper asynchronously; its failures are logged and
// never affect reconciler health.
func (r *Runner) triggerSweep(ctx context.Context) {
	if r.sweeper == nil {
		return
	}
	r.sweepWG.Add(1)
	go func() {
		defer r.sweepWG.Done()
		if _, err := r.sweeper.Sweep(ctx); err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "archival sweep failed", "error", err)
			}
		}
	}()
}

// waitWithJitter delays startup by up to 10% of the interval so multiple
// instances do not fire together.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}
