// Package status derives canonical user-facing states from raw chain enums.
// The bounty helpers are pure; submission mapping may consult the oracle
// contract for submissions whose verdict is still pending.
package status

import (
	"context"
	"log/slog"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

// ForBounty maps the raw contract status and the submission deadline to the
// canonical job status. Expiry uses strict now > deadline: a bounty exactly at
// its deadline is still accepting.
func ForBounty(rawStatus uint8, deadline, now int64) model.JobStatus {
	switch rawStatus {
	case core.RawBountyAwarded:
		return model.JobStatusAwarded
	case core.RawBountyClosed:
		return model.JobStatusClosed
	case core.RawBountyOpen:
		if now > deadline {
			return model.JobStatusExpired
		}
		return model.JobStatusOpen
	default:
		return model.JobStatusOpen
	}
}

// IsAcceptingSubmissions reports whether a bounty can still receive work.
func IsAcceptingSubmissions(rawStatus uint8, deadline, now int64) bool {
	return rawStatus == core.RawBountyOpen && now <= deadline
}

// CanBeClosed is a local approximation of the contract's close check: an open
// bounty past its deadline. The chain performs the full check.
func CanBeClosed(rawStatus uint8, deadline, now int64) bool {
	return rawStatus == core.RawBountyOpen && now > deadline
}

// Mapper maps raw submission enums to canonical statuses, consulting the
// oracle evaluation contract for submissions in the PendingVerdikta state.
type Mapper struct {
	evaluations core.EvaluationReader
	logger      *slog.Logger
}

// MapperOptions groups dependencies for Mapper.
type MapperOptions struct {
	Evaluations core.EvaluationReader // Optional: nil keeps pending submissions pending
	Logger      *slog.Logger          // Optional: structured logger
}

// NewMapper constructs a submission status mapper.
func NewMapper(opts MapperOptions) *Mapper {
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "status_mapper")
	}
	return &Mapper{
		evaluations: opts.Evaluations,
		logger:      logger,
	}
}

// Apply rewrites sub.Status from sub.OnChainStatus, copying oracle scores onto
// the record when the evaluation is available. threshold is the containing
// job's acceptance threshold (0..100).
//
// A failed or not-yet-ready evaluation keeps the submission at
// PENDING_EVALUATION; such failures are logged, never surfaced.
func (m *Mapper) Apply(ctx context.Context, sub *model.Submission, threshold int64) {
	switch sub.OnChainStatus {
	case model.ChainSubmissionPrepared:
		// Keep whatever local state exists; a draft that was only prepared on
		// chain has no verdict yet.
		if !sub.Status.Valid() || sub.Status == "" {
			sub.Status = model.SubmissionStatusPendingEvaluation
		}

	case model.ChainSubmissionPendingVerdikta:
		m.applyPendingVerdikta(ctx, sub, threshold)

	case model.ChainSubmissionFailed:
		sub.Status = model.SubmissionStatusRejected

	case model.ChainSubmissionPassedPaid, model.ChainSubmissionPassedUnpaid:
		sub.Status = model.SubmissionStatusApproved

	default:
		sub.Status = model.SubmissionStatusUnknown
	}
}

func (m *Mapper) applyPendingVerdikta(ctx context.Context, sub *model.Submission, threshold int64) {
	if !sub.HasAggregatorID() || m.evaluations == nil {
		sub.Status = model.SubmissionStatusPendingEvaluation
		return
	}

	eval, err := m.evaluations.GetEvaluation(ctx, sub.VerdiktaAggID)
	if err != nil {
		if m.logger != nil {
			m.logger.DebugContext(ctx, "evaluation lookup failed, keeping submission pending",
				"aggregator_id", sub.VerdiktaAggID,
				"error", err,
			)
		}
		sub.Status = model.SubmissionStatusPendingEvaluation
		return
	}
	if eval == nil || !eval.OK || len(eval.Scores) < 2 {
		sub.Status = model.SubmissionStatusPendingEvaluation
		return
	}

	sub.Acceptance = eval.AcceptancePercent()
	sub.Rejection = eval.RejectionPercent()
	if eval.JustificationCIDs != "" {
		sub.JustificationCIDs = eval.JustificationCIDs
	}

	// Boundary rule: a score exactly at the threshold passes.
	if sub.Acceptance >= threshold {
		sub.Status = model.SubmissionStatusAcceptedPendingClaim
	} else {
		sub.Status = model.SubmissionStatusRejectedPendingFinalization
	}
}
