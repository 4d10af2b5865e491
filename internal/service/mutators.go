package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/status"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
	"github.com/verdikta/verdikta-applications-sub002/internal/observability/statsd"
)

// resolveScanWindow is how many bounty indices the slow resolve path scans
// backwards from the top of the contract.
const resolveScanWindow = 300

// resolveDeadlineTolerance bounds the deadline drift the slow path accepts.
const resolveDeadlineTolerance = 300

// MutatorsOptions groups dependencies for Mutators.
type MutatorsOptions struct {
	Store             core.Store         // Required: snapshot store
	Chain             core.ChainReader   // Optional: required for resolve/refresh
	Receipts          core.ReceiptReader // Optional: resolve fast path
	Mapper            *status.Mapper     // Optional: required for refresh
	ContractAddress   string             // Required: authoritative contract (lower-cased)
	AfterRetrievalTTL time.Duration      // Optional: retention after retrieval, default 7 days
	ScanWindow        int64              // Optional: slow resolve window, default 300
	Logger            *slog.Logger       // Optional: structured logger
	Metrics           statsd.Sink        // Optional: metrics sink
	Now               func() time.Time   // Optional: clock override (tests)
}

// Mutators serves interactive write requests against the mirror. Every write
// goes through Store.Update; chain reads happen before the lock is taken.
type Mutators struct {
	store        core.Store
	chain        core.ChainReader
	receipts     core.ReceiptReader
	mapper       *status.Mapper
	contract     string
	retrievalTTL time.Duration
	scanWindow   int64
	logger       *slog.Logger
	metrics      statsd.Sink
	now          func() time.Time
}

// NewMutators constructs the local mutator service.
func NewMutators(opts MutatorsOptions) (*Mutators, error) {
	if opts.Store == nil {
		return nil, apperrors.Validation("store is required")
	}
	if opts.ContractAddress == "" {
		return nil, apperrors.Validation("contract address is required")
	}

	retrievalTTL := opts.AfterRetrievalTTL
	if retrievalTTL <= 0 {
		retrievalTTL = 7 * 24 * time.Hour
	}
	scanWindow := opts.ScanWindow
	if scanWindow <= 0 {
		scanWindow = resolveScanWindow
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "mutators")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Mutators{
		store:        opts.Store,
		chain:        opts.Chain,
		receipts:     opts.Receipts,
		mapper:       opts.Mapper,
		contract:     strings.ToLower(opts.ContractAddress),
		retrievalTTL: retrievalTTL,
		scanWindow:   scanWindow,
		logger:       logger,
		metrics:      opts.Metrics,
		now:          now,
	}, nil
}

// CreateLocalJob registers a job ahead of its on-chain deployment. The job
// gets the next local id and starts OPEN with no chain linkage.
func (m *Mutators) CreateLocalJob(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("request is required")
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "create job")
	}

	var created *model.Job
	err := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
		job := &model.Job{
			JobID:               snapshot.NextID,
			OnChain:             false,
			ContractAddress:     m.contract,
			Creator:             req.Creator,
			Title:               req.Title,
			Description:         req.Description,
			WorkProductType:     req.WorkProductType,
			BountyAmount:        req.BountyAmount,
			BountyAmountUSD:     req.BountyAmountUSD,
			Threshold:           req.Threshold,
			EvaluationCID:       req.EvaluationCID,
			ClassID:             req.ClassID,
			JuryNodes:           req.JuryNodes,
			SubmissionOpenTime:  req.SubmissionOpenTime,
			SubmissionCloseTime: req.SubmissionCloseTime,
			Status:              model.JobStatusOpen,
			Submissions:         []*model.Submission{},
		}
		snapshot.Jobs = append(snapshot.Jobs, job)
		snapshot.NextID++
		created = job.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.emitMutation("create_job", nil)
	if m.logger != nil {
		m.logger.InfoContext(ctx, "created local job", "job_id", created.JobID, "creator", created.Creator)
	}
	return created, nil
}

// findJob resolves a job id against the authoritative contract, so a same-id
// orphan left behind by a contract swap is never mutated by mistake.
func (m *Mutators) findJob(snapshot *core.Snapshot, jobID int64) *model.Job {
	return snapshot.FindJobOnContract(m.contract, jobID)
}

// AttachBountyID links a local job to its confirmed on-chain bounty. The job
// adopts the chain index as its id.
func (m *Mutators) AttachBountyID(ctx context.Context, params model.AttachBountyParams) (*model.Job, error) {
	var updated *model.Job
	err := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
		job := m.findJob(snapshot, params.JobID)
		if job == nil {
			return apperrors.NotFoundf("job %d not found", params.JobID)
		}

		job.JobID = params.BountyID
		job.OnChain = true
		if params.TxHash != "" {
			job.TxHash = params.TxHash
		}
		if params.BlockNumber != 0 {
			job.BlockNumber = params.BlockNumber
		}
		if job.ContractAddress == "" {
			job.ContractAddress = m.contract
		}
		if params.BountyID+1 > snapshot.NextID {
			snapshot.NextID = params.BountyID + 1
		}
		updated = job.Clone()
		return nil
	})
	if err != nil {
		m.emitMutation("attach_bounty", err)
		return nil, err
	}

	m.emitMutation("attach_bounty", nil)
	if m.logger != nil {
		m.logger.InfoContext(ctx, "attached bounty id",
			"job_id", params.JobID, "bounty_id", params.BountyID, "tx_hash", params.TxHash)
	}
	return updated, nil
}

// ResolveBountyID recovers the chain index of a deployed bounty when the
// caller lost it. Fast path reads the creating transaction's receipt; slow
// path scans recent bounty indices for a shape match. No match detaches the
// job (onChain=false) and returns NotFound.
func (m *Mutators) ResolveBountyID(ctx context.Context, params model.ResolveBountyParams) (*model.Job, error) {
	if m.chain == nil {
		return nil, apperrors.InvalidState("chain reader not configured")
	}

	bountyID, found, err := m.lookupBountyID(ctx, params)
	if err != nil {
		return nil, err
	}

	if !found {
		detachErr := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
			job := m.findJob(snapshot, params.JobID)
			if job == nil {
				return apperrors.NotFoundf("job %d not found", params.JobID)
			}
			job.OnChain = false
			return nil
		})
		if detachErr != nil {
			return nil, detachErr
		}
		m.emitMutation("resolve_bounty", apperrors.NotFound("bounty not resolved"))
		return nil, apperrors.NotFoundf("no on-chain bounty matches job %d", params.JobID)
	}

	job, err := m.AttachBountyID(ctx, model.AttachBountyParams{
		JobID:    params.JobID,
		BountyID: bountyID,
		TxHash:   params.TxHash,
	})
	if err != nil {
		return nil, err
	}

	m.emitMutation("resolve_bounty", nil)
	return job, nil
}

func (m *Mutators) lookupBountyID(ctx context.Context, params model.ResolveBountyParams) (int64, bool, error) {
	// Fast path: the creating transaction's receipt carries the BountyCreated
	// log with the assigned index.
	if params.TxHash != "" && m.receipts != nil {
		bountyID, found, err := m.receipts.BountyIDFromReceipt(ctx, params.TxHash, m.contract)
		if err != nil && m.logger != nil {
			m.logger.WarnContext(ctx, "receipt lookup failed, falling back to scan",
				"tx_hash", params.TxHash, "error", err)
		}
		if found {
			return bountyID, true, nil
		}
	}

	count, err := m.chain.BountyCount(ctx)
	if err != nil {
		return 0, false, wrapCycle(err, "read bounty count")
	}

	creator := strings.ToLower(strings.TrimSpace(params.Creator))
	floor := count - m.scanWindow
	if floor < 0 {
		floor = 0
	}

	bestID := int64(-1)
	bestDelta := int64(resolveDeadlineTolerance + 1)
	for id := count - 1; id >= floor; id-- {
		bounty, err := m.chain.GetBounty(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return 0, false, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeCanceled, "resolve scan")
			}
			continue
		}
		if creator != "" && !strings.EqualFold(bounty.Creator, creator) {
			continue
		}
		if params.EvaluationCID != "" && bounty.EvaluationCID != params.EvaluationCID {
			continue
		}
		delta := absDiff(bounty.SubmissionDeadline, params.Deadline)
		if delta > resolveDeadlineTolerance {
			continue
		}
		if delta < bestDelta {
			bestDelta = delta
			bestID = id
		}
	}

	if bestID < 0 {
		return 0, false, nil
	}
	return bestID, true, nil
}

// RefreshSubmission re-reads one submission from chain, runs status mapping
// including the oracle lookup, and writes the result back. Serves interactive
// "refresh now" requests without waiting for the next cycle.
func (m *Mutators) RefreshSubmission(ctx context.Context, jobID, submissionID int64) (*model.Submission, error) {
	if m.chain == nil || m.mapper == nil {
		return nil, apperrors.InvalidState("chain reader not configured")
	}

	snapshot, err := m.store.ReadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	job := m.findJob(snapshot, jobID)
	if job == nil {
		return nil, apperrors.NotFoundf("job %d not found", jobID)
	}
	if !job.OnChain {
		return nil, apperrors.InvalidStatef("job %d has no confirmed on-chain id", jobID)
	}
	threshold := job.Threshold

	chainSub, err := m.chain.GetSubmission(ctx, job.JobID, submissionID)
	if err != nil {
		return nil, wrapCycle(err, "read submission")
	}

	refreshed := &model.Submission{
		SubmissionID:  submissionID,
		Hunter:        chainSub.Hunter,
		EvaluationCID: chainSub.EvaluationCID,
		HunterCID:     chainSub.HunterCID,
		VerdiktaAggID: chainSub.AggregatorID,
		OnChainStatus: chainSub.RawStatus,
		SubmittedAt:   chainSub.SubmittedAt,
		FinalizedAt:   chainSub.FinalizedAt,
	}
	if prev := job.FindSubmission(submissionID); prev != nil {
		refreshed.CopyLocalFieldsFrom(prev)
		refreshed.Status = prev.Status
		refreshed.Acceptance = prev.Acceptance
		refreshed.Rejection = prev.Rejection
		refreshed.JustificationCIDs = prev.JustificationCIDs
	}
	m.mapper.Apply(ctx, refreshed, threshold)

	err = m.store.Update(ctx, func(fresh *core.Snapshot) error {
		target := m.findJob(fresh, jobID)
		if target == nil {
			return apperrors.NotFoundf("job %d not found", jobID)
		}
		for i, sub := range target.Submissions {
			if sub != nil && sub.SubmissionID == submissionID {
				target.Submissions[i] = refreshed.Clone()
				return nil
			}
		}
		target.Submissions = append(target.Submissions, refreshed.Clone())
		return nil
	})
	if err != nil {
		m.emitMutation("refresh_submission", err)
		return nil, err
	}

	m.emitMutation("refresh_submission", nil)
	return refreshed, nil
}

// CancelSubmission removes a local draft. Only submissions still in the
// Prepared state can be cancelled; the dense id sequence is restored after
// removal.
func (m *Mutators) CancelSubmission(ctx context.Context, jobID, submissionID int64) error {
	err := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
		job := m.findJob(snapshot, jobID)
		if job == nil {
			return apperrors.NotFoundf("job %d not found", jobID)
		}

		for i, sub := range job.Submissions {
			if sub == nil || sub.SubmissionID != submissionID {
				continue
			}
			if !sub.Status.IsPrepared() {
				return apperrors.InvalidStatef("submission %d is %s, only Prepared submissions can be cancelled",
					submissionID, sub.Status)
			}
			job.Submissions = append(job.Submissions[:i], job.Submissions[i+1:]...)
			job.RenumberSubmissions()
			if job.SubmissionCount > 0 {
				job.SubmissionCount--
			}
			return nil
		}
		return apperrors.NotFoundf("submission %d not found on job %d", submissionID, jobID)
	})

	m.emitMutation("cancel_submission", err)
	if err == nil && m.logger != nil {
		m.logger.InfoContext(ctx, "cancelled submission", "job_id", jobID, "submission_id", submissionID)
	}
	return err
}

// MarkAsRetrieved records that the bounty poster fetched a submission's
// content and shortens the archive retention accordingly. Repeat calls update
// the retrieval timestamp but never extend the shortened window.
func (m *Mutators) MarkAsRetrieved(ctx context.Context, params model.MarkRetrievedParams) error {
	now := m.now().Unix()
	newExpiry := now + int64(m.retrievalTTL.Seconds())

	err := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
		job := m.findJob(snapshot, params.JobID)
		if job == nil {
			return apperrors.NotFoundf("job %d not found", params.JobID)
		}
		sub := job.FindSubmission(params.SubmissionID)
		if sub == nil {
			return apperrors.NotFoundf("submission %d not found on job %d", params.SubmissionID, params.JobID)
		}

		sub.RetrievedByPoster = true
		sub.RetrievedAt = now
		sub.RetrieverAddress = strings.ToLower(strings.TrimSpace(params.Retriever))
		if sub.ArchiveExpiresAt == 0 || newExpiry < sub.ArchiveExpiresAt {
			sub.ArchiveExpiresAt = newExpiry
		}
		return nil
	})

	m.emitMutation("mark_retrieved", err)
	return err
}

// CleanupOrphans removes ORPHANED jobs from the snapshot. Orphaned records are
// otherwise kept indefinitely; removal is an explicit administrative action.
func (m *Mutators) CleanupOrphans(ctx context.Context) (int, error) {
	removed := 0
	err := m.store.Update(ctx, func(snapshot *core.Snapshot) error {
		kept := make([]*model.Job, 0, len(snapshot.Jobs))
		for _, job := range snapshot.Jobs {
			if job != nil && job.Status == model.JobStatusOrphaned {
				removed++
				continue
			}
			kept = append(kept, job)
		}
		snapshot.Jobs = kept
		return nil
	})
	if err != nil {
		m.emitMutation("cleanup_orphans", err)
		return 0, err
	}

	m.emitMutation("cleanup_orphans", nil)
	if removed > 0 && m.logger != nil {
		m.logger.InfoContext(ctx, "removed orphaned jobs", "count", removed)
	}
	return removed, nil
}

func (m *Mutators) emitMutation(operation string, err error) {
	if m.metrics == nil {
		return
	}
	result := statsd.ResultSuccess
	if err != nil {
		result = statsd.ResultError
	}
	m.metrics.Count("mutator.operation", 1, map[string]string{
		"operation": operation,
		"result":    result,
	})
}
