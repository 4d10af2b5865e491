package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
	"github.com/verdikta/verdikta-applications-sub002/internal/observability/statsd"
)

// SweeperOptions groups dependencies for Sweeper.
type SweeperOptions struct {
	Store          core.Store       // Required: snapshot store
	Pins           core.Pinner      // Required: pinning service client
	TTL            time.Duration    // Optional: retention from bounty close, default 30 days
	VerifyInterval time.Duration    // Optional: per-CID verification spacing, default 1h
	RateLimit      time.Duration    // Optional: inter-call pin API delay, default 250ms
	Logger         *slog.Logger     // Optional: structured logger
	Metrics        statsd.Sink      // Optional: metrics sink
	Now            func() time.Time // Optional: clock override (tests)
}

// Sweeper walks every submission with pinned content and keeps it retrievable
// until its retention window closes. Sweeps never overlap with themselves and
// never fail the reconciler; per-submission errors are counted and logged.
type Sweeper struct {
	store          core.Store
	pins           core.Pinner
	ttl            time.Duration
	verifyInterval time.Duration
	rateLimit      time.Duration
	logger         *slog.Logger
	metrics        statsd.Sink
	now            func() time.Time

	sweeping atomic.Bool
}

// NewSweeper constructs the archival sweeper.
func NewSweeper(opts SweeperOptions) (*Sweeper, error) {
	if opts.Store == nil {
		return nil, apperrors.Validation("store is required")
	}
	if opts.Pins == nil {
		return nil, apperrors.Validation("pinner is required")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	verifyInterval := opts.VerifyInterval
	if verifyInterval <= 0 {
		verifyInterval = time.Hour
	}
	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = 250 * time.Millisecond
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "archival_sweeper")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		store:          opts.Store,
		pins:           opts.Pins,
		ttl:            ttl,
		verifyInterval: verifyInterval,
		rateLimit:      rateLimit,
		logger:         logger,
		metrics:        opts.Metrics,
		now:            now,
	}, nil
}

// SweepStats summarizes one archival sweep.
type SweepStats struct {
	Ran      bool
	Verified int
	Repinned int
	Failed   int
	Expired  int
	Skipped  int
	Errors   int
}

// archiveUpdate is the field patch one swept submission produces. Pin API
// calls happen off-lock; the patches are applied in one store update.
type archiveUpdate struct {
	jobID        int64
	contract     string
	submissionID int64

	status     model.ArchiveStatus
	archivedAt int64
	verifiedAt int64
	expiresAt  int64
	repinnedAt int64
	failedAt   int64
}

// Sweep runs one archival pass over the whole snapshot. Overlapping calls
// return immediately with Ran=false.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepStats, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "sweep already running, skipping")
		}
		return &SweepStats{Ran: false}, nil
	}
	defer s.sweeping.Store(false)

	start := s.now()
	sweepID := uuid.NewString()
	logger := s.logger
	if logger != nil {
		logger = logger.With("sweep_id", sweepID)
	}

	stats, err := s.runSweep(ctx, logger)
	s.emitSweepMetrics(stats, err, s.now().Sub(start))

	if logger != nil {
		if err != nil {
			logger.ErrorContext(ctx, "archival sweep failed", "error", err)
		} else {
			logger.InfoContext(ctx, "archival sweep complete",
				"verified", stats.Verified,
				"repinned", stats.Repinned,
				"failed", stats.Failed,
				"expired", stats.Expired,
				"skipped", stats.Skipped,
				"errors", stats.Errors,
			)
		}
	}
	return stats, err
}

func (s *Sweeper) runSweep(ctx context.Context, logger *slog.Logger) (*SweepStats, error) {
	stats := &SweepStats{Ran: true}

	snapshot, err := s.store.ReadSnapshot(ctx)
	if err != nil {
		return stats, err
	}

	limiter := rate.NewLimiter(rate.Every(s.rateLimit), 1)
	var updates []archiveUpdate

	for _, job := range snapshot.Jobs {
		if job == nil || job.Status == model.JobStatusOrphaned || len(job.Submissions) == 0 {
			continue
		}
		for _, sub := range job.Submissions {
			if sub == nil || sub.HunterCID == "" {
				continue
			}
			update, outcome := s.sweepSubmission(ctx, job, sub, limiter, logger)
			switch outcome {
			case sweepVerified:
				stats.Verified++
			case sweepRepinned:
				stats.Repinned++
			case sweepFailed:
				stats.Failed++
			case sweepExpired:
				stats.Expired++
			case sweepSkipped:
				stats.Skipped++
			case sweepErrored:
				stats.Errors++
			}
			if update != nil {
				updates = append(updates, *update)
			}
			if ctx.Err() != nil {
				return stats, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "archival sweep")
			}
		}
	}

	if len(updates) == 0 {
		return stats, nil
	}

	err = s.store.Update(ctx, func(fresh *core.Snapshot) error {
		for _, update := range updates {
			applyArchiveUpdate(fresh, update)
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, nil
}

type sweepOutcome int

const (
	sweepSkipped sweepOutcome = iota
	sweepVerified
	sweepRepinned
	sweepFailed
	sweepExpired
	sweepErrored
)

func (s *Sweeper) sweepSubmission(ctx context.Context, job *model.Job, sub *model.Submission, limiter *rate.Limiter, logger *slog.Logger) (*archiveUpdate, sweepOutcome) {
	now := s.now().Unix()

	expiresAt := sub.ArchiveExpiresAt
	if expiresAt == 0 && job.SubmissionCloseTime > 0 {
		expiresAt = job.SubmissionCloseTime + int64(s.ttl.Seconds())
	}

	// Retention window closed: mark expired once, never unpin.
	if expiresAt > 0 && now > expiresAt {
		if sub.ArchiveStatus == model.ArchiveStatusExpired {
			return nil, sweepSkipped
		}
		return &archiveUpdate{
			jobID:        job.JobID,
			contract:     job.ContractAddress,
			submissionID: sub.SubmissionID,
			status:       model.ArchiveStatusExpired,
			archivedAt:   sub.ArchivedAt,
			verifiedAt:   sub.ArchiveVerifiedAt,
			expiresAt:    expiresAt,
			repinnedAt:   sub.LastRepinnedAt,
			failedAt:     sub.LastFailedAt,
		}, sweepExpired
	}

	// Verification spacing gate.
	if sub.ArchiveVerifiedAt > 0 && now-sub.ArchiveVerifiedAt < int64(s.verifyInterval.Seconds()) {
		return nil, sweepSkipped
	}

	update := &archiveUpdate{
		jobID:        job.JobID,
		contract:     job.ContractAddress,
		submissionID: sub.SubmissionID,
		archivedAt:   sub.ArchivedAt,
		verifiedAt:   sub.ArchiveVerifiedAt,
		expiresAt:    expiresAt,
		repinnedAt:   sub.LastRepinnedAt,
		failedAt:     sub.LastFailedAt,
	}
	if update.archivedAt == 0 {
		update.archivedAt = now
	}

	if err := limiter.Wait(ctx); err != nil {
		return nil, sweepErrored
	}

	pinned, err := s.pins.VerifyPin(ctx, sub.HunterCID)
	if err != nil && logger != nil {
		logger.DebugContext(ctx, "pin verification degraded",
			"cid", sub.HunterCID, "job_id", job.JobID, "error", err)
	}

	if pinned {
		update.status = model.ArchiveStatusVerified
		update.verifiedAt = now
		return update, sweepVerified
	}

	// Content dropped off the pin service; put it back.
	if err := limiter.Wait(ctx); err != nil {
		return nil, sweepErrored
	}
	ok, err := s.pins.PinByHash(ctx, sub.HunterCID, core.PinMetadata{
		Name:         "bounty-" + job.Title,
		JobID:        job.JobID,
		SubmissionID: sub.SubmissionID,
	})
	if ok {
		update.status = model.ArchiveStatusRepinned
		update.repinnedAt = now
		update.verifiedAt = now
		if logger != nil {
			logger.InfoContext(ctx, "repinned submission content",
				"cid", sub.HunterCID, "job_id", job.JobID, "submission_id", sub.SubmissionID)
		}
		return update, sweepRepinned
	}

	update.status = model.ArchiveStatusFailed
	update.failedAt = now
	if logger != nil {
		logger.WarnContext(ctx, "repin failed",
			"cid", sub.HunterCID, "job_id", job.JobID, "submission_id", sub.SubmissionID, "error", err)
	}
	return update, sweepFailed
}

// applyArchiveUpdate routes the patch to the job the sweep actually walked;
// a same-id orphan from an old contract version must not absorb it.
func applyArchiveUpdate(snapshot *core.Snapshot, update archiveUpdate) {
	job := snapshot.FindJobOnContract(update.contract, update.jobID)
	if job == nil {
		return
	}
	sub := job.FindSubmission(update.submissionID)
	if sub == nil {
		return
	}
	sub.ArchiveStatus = update.status
	sub.ArchivedAt = update.archivedAt
	sub.ArchiveVerifiedAt = update.verifiedAt
	sub.ArchiveExpiresAt = update.expiresAt
	sub.LastRepinnedAt = update.repinnedAt
	sub.LastFailedAt = update.failedAt
}

func (s *Sweeper) emitSweepMetrics(stats *SweepStats, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	result := statsd.ResultSuccess
	if err != nil {
		result = statsd.ResultError
	} else if stats.Verified == 0 && stats.Repinned == 0 && stats.Failed == 0 && stats.Expired == 0 {
		result = statsd.ResultNoop
	}

	tags := map[string]string{"result": result}
	s.metrics.Count("archive.sweep", 1, tags)
	s.metrics.Timing("archive.sweep_duration", elapsed, statsd.CloneTags(tags))

	if stats.Repinned > 0 {
		s.metrics.Count("archive.repinned", int64(stats.Repinned), nil)
	}
	if stats.Failed > 0 {
		s.metrics.Count("archive.repin_failed", int64(stats.Failed), nil)
	}
	if stats.Expired > 0 {
		s.metrics.Count("archive.expired", int64(stats.Expired), nil)
	}
}
