// Package service hosts the mirror's write paths: the reconciler that follows
// the chain, the archival sweeper that keeps content pinned, and the local
// mutators that serve interactive requests. All of them commit through the
// store's single-writer discipline.
package service

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/status"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
	obserrors "github.com/verdikta/verdikta-applications-sub002/internal/observability/errors"
	"github.com/verdikta/verdikta-applications-sub002/internal/observability/statsd"
)

// ReconcilerOptions groups dependencies for Reconciler.
type ReconcilerOptions struct {
	Store           core.Store           // Required: snapshot store
	Chain           core.ChainReader     // Required: bounty contract reader
	Mapper          *status.Mapper       // Required: submission status mapper
	Metadata        core.MetadataFetcher // Optional: nil keeps placeholders
	ContractAddress string               // Required: authoritative contract (lower-cased)
	Logger          *slog.Logger         // Optional: structured logger
	Metrics         statsd.Sink          // Optional: metrics sink
	Now             func() time.Time     // Optional: clock override (tests)
}

// Reconciler drives one-directional sync from the chain into the local
// snapshot. Cycles are serial; an in-flight cycle makes SyncCycle return
// immediately with a noop result.
type Reconciler struct {
	store    core.Store
	chain    core.ChainReader
	mapper   *status.Mapper
	metadata core.MetadataFetcher
	contract string
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time

	syncing atomic.Bool

	// lastBlock is the head recorded by the previous successful cycle; used to
	// bound the event query that builds the touched-bounty set.
	lastBlock atomic.Uint64
}

// NewReconciler constructs the reconciler.
func NewReconciler(opts ReconcilerOptions) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, apperrors.Validation("store is required")
	}
	if opts.Chain == nil {
		return nil, apperrors.Validation("chain reader is required")
	}
	if opts.Mapper == nil {
		return nil, apperrors.Validation("status mapper is required")
	}
	if opts.ContractAddress == "" {
		return nil, apperrors.Validation("contract address is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reconciler")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		store:    opts.Store,
		chain:    opts.Chain,
		mapper:   opts.Mapper,
		metadata: opts.Metadata,
		contract: strings.ToLower(opts.ContractAddress),
		logger:   logger,
		metrics:  opts.Metrics,
		now:      now,
	}, nil
}

// CycleStats summarizes one reconciler cycle.
type CycleStats struct {
	Ran         bool
	BountyCount int64
	Created     int
	Updated     int
	Skipped     int
	Orphaned    int
	Duplicates  int
	FetchErrors int
	HeadBlock   uint64
}

// SyncCycle runs one full reconciliation cycle. Overlapping calls return
// immediately with Ran=false. Errors never reach users; the caller counts
// them toward the consecutive-failure threshold.
func (r *Reconciler) SyncCycle(ctx context.Context) (*CycleStats, error) {
	if !r.syncing.CompareAndSwap(false, true) {
		if r.logger != nil {
			r.logger.InfoContext(ctx, "sync already running, skipping cycle")
		}
		return &CycleStats{Ran: false}, nil
	}
	defer r.syncing.Store(false)

	start := r.now()
	cycleID := uuid.NewString()
	logger := r.logger
	if logger != nil {
		logger = logger.With("cycle_id", cycleID)
	}

	stats, err := r.runCycle(ctx, logger)
	elapsed := r.now().Sub(start)
	r.emitCycleMetrics(stats, err, elapsed)

	if logger != nil {
		if err != nil {
			logger.ErrorContext(ctx, "sync cycle failed", "error", err, "elapsed", elapsed)
		} else {
			logger.InfoContext(ctx, "sync cycle complete",
				"bounty_count", stats.BountyCount,
				"created", stats.Created,
				"updated", stats.Updated,
				"skipped", stats.Skipped,
				"orphaned", stats.Orphaned,
				"duplicates", stats.Duplicates,
				"fetch_errors", stats.FetchErrors,
				"head_block", stats.HeadBlock,
				"elapsed", elapsed,
			)
		}
	}
	return stats, err
}

func (r *Reconciler) runCycle(ctx context.Context, logger *slog.Logger) (*CycleStats, error) {
	stats := &CycleStats{Ran: true}

	head, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return stats, wrapCycle(err, "read head block")
	}
	stats.HeadBlock = head

	count, err := r.chain.BountyCount(ctx)
	if err != nil {
		return stats, wrapCycle(err, "read bounty count")
	}
	stats.BountyCount = count

	touched := r.touchedBounties(ctx, head, logger)

	mutable, err := r.store.ReadSnapshot(ctx)
	if err != nil {
		return stats, err
	}

	cs := &changeSet{nextID: mutable.NextID}
	index := mutable.IndexJobs()
	seen := make(map[int64]bool, count)
	now := r.now().Unix()

	for id := int64(0); id < count; id++ {
		bounty, err := r.chain.GetBounty(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return stats, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "sync cycle")
			}
			stats.FetchErrors++
			// The bounty exists; a failed read must not orphan its mirror.
			seen[id] = true
			if logger != nil {
				logger.WarnContext(ctx, "bounty fetch failed, keeping local record",
					"bounty_id", id, "error", err)
			}
			continue
		}
		seen[id] = true

		r.reconcileBounty(ctx, reconcileParams{
			bounty:  bounty,
			mutable: mutable,
			index:   index,
			changes: cs,
			touched: touched[id],
			now:     now,
			stats:   stats,
			logger:  logger,
		})
	}

	r.orphanPass(mutable, cs, seen, now, stats, logger)
	stats.Duplicates = r.duplicatePass(mutable, cs)

	// An idle cycle commits nothing; the document only changes when the chain
	// or the census did.
	if stats.Duplicates == 0 && cs.isEmpty(mutable.NextID) {
		r.lastBlock.Store(head)
		return stats, nil
	}

	if err := r.store.Update(ctx, func(fresh *core.Snapshot) error {
		cs.mergeInto(fresh)
		return nil
	}); err != nil {
		return stats, err
	}

	r.lastBlock.Store(head)
	return stats, nil
}

// touchedBounties queries contract events since the last synced block and
// returns the bounty ids they mention. A failed query degrades to polling-only
// change detection; it never fails the cycle.
func (r *Reconciler) touchedBounties(ctx context.Context, head uint64, logger *slog.Logger) map[int64]bool {
	last := r.lastBlock.Load()
	if last == 0 || head <= last {
		return nil
	}

	events, err := r.chain.GetLogs(ctx, last+1, head)
	if err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "event query failed, falling back to change detection",
				"from_block", last+1, "to_block", head, "error", err)
		}
		return nil
	}

	touched := make(map[int64]bool, len(events))
	for _, event := range events {
		touched[event.BountyID] = true
	}
	return touched
}

type reconcileParams struct {
	bounty  *core.Bounty
	mutable *core.Snapshot
	index   map[core.JobKey]*model.Job
	changes *changeSet
	touched bool
	now     int64
	stats   *CycleStats
	logger  *slog.Logger
}

func (r *Reconciler) reconcileBounty(ctx context.Context, p reconcileParams) {
	bounty := p.bounty

	// Exact match against the authoritative contract.
	job := p.index[core.JobKey{ContractAddress: r.contract, JobID: bounty.ID}]

	// Pending link: a local job deployed by a mutator that has not stamped its
	// chain identity yet.
	if job == nil {
		job = findPendingLink(p.mutable, bounty)
		if job != nil {
			originalID := job.JobID
			job.ContractAddress = r.contract
			if p.logger != nil {
				p.logger.InfoContext(ctx, "linked pending local job to chain bounty",
					"local_id", originalID, "bounty_id", bounty.ID)
			}
		}
	}

	if job == nil {
		created := r.buildSyncedJob(ctx, bounty, p.now)
		p.mutable.Jobs = append(p.mutable.Jobs, created)
		p.index[core.KeyOf(created)] = created
		p.changes.created = append(p.changes.created, created)
		if bounty.ID+1 > p.changes.nextID {
			p.changes.nextID = bounty.ID + 1
		}
		p.stats.Created++
		return
	}

	if !p.touched && !needsUpdate(job, bounty, p.now) {
		p.stats.Skipped++
		return
	}

	originalID := job.JobID
	r.updateJob(ctx, job, bounty, p.now)
	p.changes.updated = append(p.changes.updated, changedJob{originalID: originalID, job: job})
	if bounty.ID+1 > p.changes.nextID {
		p.changes.nextID = bounty.ID + 1
	}
	p.stats.Updated++
}

// findPendingLink scans unsynced local jobs for one that matches the bounty:
// strong match on the evaluation package CID, weak match on creator plus a
// close-time drift under a minute.
func findPendingLink(snapshot *core.Snapshot, bounty *core.Bounty) *model.Job {
	var weak *model.Job
	for _, job := range snapshot.Jobs {
		if job == nil || job.SyncedFromBlockchain || job.Status.Terminal() {
			continue
		}
		if job.EvaluationCID != "" && job.EvaluationCID == bounty.EvaluationCID {
			return job
		}
		if weak == nil &&
			job.Creator != "" && strings.EqualFold(job.Creator, bounty.Creator) &&
			absDiff(job.SubmissionCloseTime, bounty.SubmissionDeadline) < 60 {
			weak = job
		}
	}
	return weak
}

// needsUpdate is the change-detection gate that lets idle records skip the
// expensive per-submission fetches.
func needsUpdate(job *model.Job, bounty *core.Bounty, now int64) bool {
	// A record that never completed its first sync, or whose id drifted from
	// the chain index, always takes the update path.
	if !job.SyncedFromBlockchain || job.JobID != bounty.ID {
		return true
	}
	if job.Status != status.ForBounty(bounty.RawStatus, bounty.SubmissionDeadline, now) {
		return true
	}
	if job.SubmissionCount != bounty.SubmissionCount {
		return true
	}
	if job.Winner != bounty.Winner {
		return true
	}
	if job.Description == model.PlaceholderDescription {
		return true
	}
	if int64(len(job.Submissions)) < bounty.SubmissionCount {
		return true
	}
	for _, sub := range job.Submissions {
		if sub == nil {
			continue
		}
		if sub.Status.Pending() || sub.OnChainStatus == model.ChainSubmissionPendingVerdikta {
			return true
		}
	}
	if job.Status == model.JobStatusExpired && len(job.Submissions) > 0 {
		return true
	}
	if job.ContractAddress == "" {
		return true
	}
	if job.HasLegacyAliases() {
		return true
	}
	if job.EvaluationCID != bounty.EvaluationCID {
		return true
	}
	return false
}

// buildSyncedJob mirrors a bounty the store has never seen.
func (r *Reconciler) buildSyncedJob(ctx context.Context, bounty *core.Bounty, now int64) *model.Job {
	job := &model.Job{
		JobID:                bounty.ID,
		OnChain:              true,
		ContractAddress:      r.contract,
		Creator:              bounty.Creator,
		Title:                model.PlaceholderTitle(bounty.ID),
		Description:          model.PlaceholderDescription,
		BountyAmount:         weiString(bounty.PayoutWei),
		Threshold:            bounty.Threshold,
		EvaluationCID:        bounty.EvaluationCID,
		ClassID:              bounty.ClassID,
		SubmissionOpenTime:   bounty.CreatedAt,
		SubmissionCloseTime:  bounty.SubmissionDeadline,
		Status:               status.ForBounty(bounty.RawStatus, bounty.SubmissionDeadline, now),
		Winner:               bounty.Winner,
		SubmissionCount:      bounty.SubmissionCount,
		Submissions:          []*model.Submission{},
		SyncedFromBlockchain: true,
		LastSyncedAt:         now,
	}

	r.fillMetadata(ctx, job)
	r.syncSubmissions(ctx, job, bounty)
	return job
}

// updateJob overwrites chain-authoritative fields on a matched local job.
func (r *Reconciler) updateJob(ctx context.Context, job *model.Job, bounty *core.Bounty, now int64) {
	job.Status = status.ForBounty(bounty.RawStatus, bounty.SubmissionDeadline, now)
	// A bounty vouched for by the chain again sheds any stale orphan markers.
	job.OrphanedAt = 0
	job.OrphanReason = ""
	job.SubmissionCount = bounty.SubmissionCount
	job.Winner = bounty.Winner
	job.SubmissionCloseTime = bounty.SubmissionDeadline
	job.Threshold = bounty.Threshold
	if bounty.Creator != "" {
		job.Creator = bounty.Creator
	}
	if amount := weiString(bounty.PayoutWei); amount != "" {
		job.BountyAmount = amount
	}

	// Legacy id drift reconciles onto the chain index; the duplicate pass
	// removes any record already holding the target id.
	job.JobID = bounty.ID
	job.ClearLegacyAliases()

	if job.EvaluationCID != bounty.EvaluationCID {
		job.EvaluationCID = bounty.EvaluationCID
	}
	if job.ContractAddress == "" {
		job.ContractAddress = r.contract
	}
	job.OnChain = true
	job.SyncedFromBlockchain = true
	job.LastSyncedAt = now

	if job.Description == model.PlaceholderDescription {
		r.fillMetadata(ctx, job)
	}

	r.syncSubmissions(ctx, job, bounty)
}

// fillMetadata replaces placeholder title and description with fetched
// package metadata when available.
func (r *Reconciler) fillMetadata(ctx context.Context, job *model.Job) {
	if r.metadata == nil || job.EvaluationCID == "" {
		return
	}
	meta := r.metadata.Fetch(ctx, job.EvaluationCID)
	if meta == nil {
		return
	}
	if meta.Title != "" {
		job.Title = meta.Title
	}
	if meta.Description != "" {
		job.Description = meta.Description
	}
	if meta.WorkProductType != "" {
		job.WorkProductType = meta.WorkProductType
	}
}

// syncSubmissions rebuilds the job's submission list from chain state,
// preserving local-only fields and purely local drafts. Chain submissions are
// never removed; a failed fetch keeps the previous local record for that id.
func (r *Reconciler) syncSubmissions(ctx context.Context, job *model.Job, bounty *core.Bounty) {
	merged := make([]*model.Submission, 0, bounty.SubmissionCount)

	for id := int64(0); id < bounty.SubmissionCount; id++ {
		chainSub, err := r.chain.GetSubmission(ctx, bounty.ID, id)
		if err != nil {
			if prev := job.FindSubmission(id); prev != nil {
				merged = append(merged, prev)
			}
			if r.logger != nil {
				r.logger.WarnContext(ctx, "submission fetch failed, keeping local record",
					"bounty_id", bounty.ID, "submission_id", id, "error", err)
			}
			continue
		}

		sub := &model.Submission{
			SubmissionID:  id,
			Hunter:        chainSub.Hunter,
			EvaluationCID: chainSub.EvaluationCID,
			HunterCID:     chainSub.HunterCID,
			VerdiktaAggID: chainSub.AggregatorID,
			OnChainStatus: chainSub.RawStatus,
			SubmittedAt:   chainSub.SubmittedAt,
			FinalizedAt:   chainSub.FinalizedAt,
		}
		if prev := job.FindSubmission(id); prev != nil {
			sub.CopyLocalFieldsFrom(prev)
			// Seed the existing status so the mapper's raw-Prepared rule can
			// keep it.
			sub.Status = prev.Status
			sub.Acceptance = prev.Acceptance
			sub.Rejection = prev.Rejection
			sub.JustificationCIDs = prev.JustificationCIDs
		}
		r.mapper.Apply(ctx, sub, job.Threshold)
		merged = append(merged, sub)
	}

	// Purely local drafts not yet visible on chain survive at the tail.
	for _, prev := range job.Submissions {
		if prev == nil {
			continue
		}
		if prev.SubmissionID >= bounty.SubmissionCount && prev.Status.IsPrepared() {
			merged = append(merged, prev)
		}
	}

	job.Submissions = merged
}

// orphanPass detaches local jobs the authoritative contract no longer vouches
// for. Terminal jobs (ORPHANED, CLOSED) are left alone, which makes the pass
// idempotent.
func (r *Reconciler) orphanPass(mutable *core.Snapshot, cs *changeSet, seen map[int64]bool, now int64, stats *CycleStats, logger *slog.Logger) {
	for _, job := range mutable.Jobs {
		if job == nil || job.Status.Terminal() {
			continue
		}

		var reason model.OrphanReason
		switch {
		case job.ContractAddress != "" && job.ContractAddress != r.contract:
			reason = model.OrphanReasonDifferentContract
		case (job.OnChain || job.SyncedFromBlockchain) && !seen[job.JobID]:
			reason = model.OrphanReasonNotFoundOnChain
		case !job.OnChain && job.SubmissionCloseTime > 0 && now > job.SubmissionCloseTime:
			reason = model.OrphanReasonNeverDeployed
		default:
			continue
		}

		job.Status = model.JobStatusOrphaned
		job.OrphanedAt = now
		job.OrphanReason = reason
		cs.updated = append(cs.updated, changedJob{originalID: job.JobID, job: job})
		stats.Orphaned++
		if logger != nil {
			logger.Info("orphaned local job",
				"job_id", job.JobID, "reason", reason.String())
		}
	}
}

// duplicatePass drops redundant records per (contract, id) key, preferring the
// synced entry, and records the surviving census for the merge step.
func (r *Reconciler) duplicatePass(mutable *core.Snapshot, cs *changeSet) int {
	counts := make(map[core.JobKey]int, len(mutable.Jobs))
	for _, job := range mutable.Jobs {
		if job != nil {
			counts[core.KeyOf(job)]++
		}
	}

	removed := 0
	kept := make([]*model.Job, 0, len(mutable.Jobs))
	seenSynced := make(map[core.JobKey]bool, len(counts))
	for _, job := range mutable.Jobs {
		if job == nil {
			continue
		}
		key := core.KeyOf(job)
		if counts[key] > 1 {
			if !job.SyncedFromBlockchain {
				counts[key]--
				removed++
				continue
			}
			if seenSynced[key] {
				counts[key]--
				removed++
				continue
			}
			seenSynced[key] = true
		}
		kept = append(kept, job)
	}
	mutable.Jobs = kept

	census := make(map[core.JobKey]int, len(kept))
	for _, job := range kept {
		census[core.KeyOf(job)]++
	}
	cs.keyCensus = census
	return removed
}

func (r *Reconciler) emitCycleMetrics(stats *CycleStats, err error, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}

	result := statsd.ResultSuccess
	if err != nil {
		result = statsd.ResultError
	} else if stats.Created == 0 && stats.Updated == 0 && stats.Orphaned == 0 && stats.Duplicates == 0 {
		result = statsd.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	r.metrics.Count("sync.cycle", 1, tags)
	r.metrics.Timing("sync.cycle_duration", elapsed, statsd.CloneTags(tags))

	if err == nil {
		r.metrics.Gauge("sync.bounty_count", float64(stats.BountyCount), nil)
		r.metrics.Gauge("sync.last_success_epoch", float64(r.now().Unix()), nil)
		if stats.Created > 0 {
			r.metrics.Count("sync.jobs_created", int64(stats.Created), nil)
		}
		if stats.Updated > 0 {
			r.metrics.Count("sync.jobs_updated", int64(stats.Updated), nil)
		}
		if stats.Orphaned > 0 {
			r.metrics.Count("sync.jobs_orphaned", int64(stats.Orphaned), nil)
		}
	}
}

// wrapCycle preserves the cause's taxonomy code, defaulting to transient.
func wrapCycle(err error, msg string) error {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeTransient
	}
	return apperrors.Wrap(err, code, msg)
}

func weiString(wei *big.Int) string {
	if wei == nil {
		return ""
	}
	return wei.String()
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
