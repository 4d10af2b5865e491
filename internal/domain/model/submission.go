package model

import (
	"strings"
)

// SubmissionStatus is the canonical user-facing state of a submission.
type SubmissionStatus string

const (
	// SubmissionStatusPrepared marks a purely local draft not yet visible on chain.
	SubmissionStatusPrepared SubmissionStatus = "Prepared"
	// SubmissionStatusPendingEvaluation marks a submission awaiting its oracle verdict.
	SubmissionStatusPendingEvaluation SubmissionStatus = "PENDING_EVALUATION"
	// SubmissionStatusAcceptedPendingClaim marks a passing verdict awaiting payout claim.
	SubmissionStatusAcceptedPendingClaim SubmissionStatus = "ACCEPTED_PENDING_CLAIM"
	// SubmissionStatusRejectedPendingFinalization marks a failing verdict awaiting finalization.
	SubmissionStatusRejectedPendingFinalization SubmissionStatus = "REJECTED_PENDING_FINALIZATION"
	SubmissionStatusApproved                    SubmissionStatus = "APPROVED"
	SubmissionStatusRejected                    SubmissionStatus = "REJECTED"
	SubmissionStatusUnknown                     SubmissionStatus = "UNKNOWN"
)

// Valid returns true if the submission status is one of the canonical values.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionStatusPrepared, SubmissionStatusPendingEvaluation,
		SubmissionStatusAcceptedPendingClaim, SubmissionStatusRejectedPendingFinalization,
		SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the submission status.
func (s SubmissionStatus) String() string {
	return string(s)
}

// IsPrepared reports whether the status is the local-draft state. The check is
// case-insensitive because old snapshots stored "prepared".
func (s SubmissionStatus) IsPrepared() bool {
	return strings.EqualFold(string(s), string(SubmissionStatusPrepared))
}

// Pending reports whether the submission still needs chain attention; pending
// submissions force the reconciler's update path for the containing job.
func (s SubmissionStatus) Pending() bool {
	switch s {
	case SubmissionStatusPendingEvaluation, SubmissionStatusAcceptedPendingClaim,
		SubmissionStatusRejectedPendingFinalization:
		return true
	default:
		return false
	}
}

// NormalizeSubmissionStatus maps historical spellings onto the canonical set.
// Older snapshots used "PASSED" for approved submissions.
func NormalizeSubmissionStatus(raw string) SubmissionStatus {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, string(SubmissionStatusPrepared)) {
		return SubmissionStatusPrepared
	}
	upper := SubmissionStatus(strings.ToUpper(trimmed))
	switch upper {
	case "PASSED":
		return SubmissionStatusApproved
	case "":
		return SubmissionStatusUnknown
	default:
		if upper.Valid() {
			return upper
		}
		return upper
	}
}

// ChainSubmissionStatus is the raw submission enum stored by the contract.
type ChainSubmissionStatus uint8

const (
	ChainSubmissionPrepared        ChainSubmissionStatus = 0
	ChainSubmissionPendingVerdikta ChainSubmissionStatus = 1
	ChainSubmissionFailed          ChainSubmissionStatus = 2
	ChainSubmissionPassedPaid      ChainSubmissionStatus = 3
	ChainSubmissionPassedUnpaid    ChainSubmissionStatus = 4
)

// ArchiveStatus tracks the pin-verification lifecycle of a submission's content.
type ArchiveStatus string

const (
	ArchiveStatusVerified ArchiveStatus = "verified"
	ArchiveStatusRepinned ArchiveStatus = "repinned"
	ArchiveStatusFailed   ArchiveStatus = "failed"
	ArchiveStatusExpired  ArchiveStatus = "expired"
	ArchiveStatusUnknown  ArchiveStatus = "unknown"
)

// Valid returns true if the archive status is one of the supported values.
func (s ArchiveStatus) Valid() bool {
	switch s {
	case ArchiveStatusVerified, ArchiveStatusRepinned, ArchiveStatusFailed,
		ArchiveStatusExpired, ArchiveStatusUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the archive status.
func (s ArchiveStatus) String() string {
	return string(s)
}

// SubmissionFile describes one locally uploaded file. Local-only; never
// mirrored from chain.
type SubmissionFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	Description string `json:"description,omitempty"`
}

// ZeroAggregatorID is the 32-byte zero value indicating no oracle evaluation
// has been requested for a submission.
const ZeroAggregatorID = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Submission is the child record of a Job, indexed 0-based matching the chain.
type Submission struct {
	// SubmissionID equals the on-chain index when the submission is on chain.
	SubmissionID int64 `json:"submissionId"`

	Hunter string `json:"hunter,omitempty"`

	// EvaluationCID and HunterCID may be empty while the submission is still a
	// local draft ("Prepared off-chain").
	EvaluationCID string `json:"evaluationCid,omitempty"`
	HunterCID     string `json:"hunterCid,omitempty"`

	// VerdiktaAggID addresses the oracle evaluation for this submission; the
	// zero value means no evaluation was requested yet.
	VerdiktaAggID string `json:"verdiktaAggId,omitempty"`

	Status SubmissionStatus `json:"status"`

	// OnChainStatus is the last raw chain enum seen, kept for diagnostics.
	OnChainStatus ChainSubmissionStatus `json:"onChainStatus"`

	// Acceptance and Rejection are oracle score percentages (0..100).
	Acceptance int64 `json:"acceptance,omitempty"`
	Rejection  int64 `json:"rejection,omitempty"`

	JustificationCIDs string `json:"justificationCids,omitempty"`

	SubmittedAt int64 `json:"submittedAt,omitempty"`
	FinalizedAt int64 `json:"finalizedAt,omitempty"`

	// Files are local-only upload descriptors.
	Files []SubmissionFile `json:"files,omitempty"`

	// Archival fields maintained by the archival sweeper.
	ArchiveStatus     ArchiveStatus `json:"archiveStatus,omitempty"`
	ArchivedAt        int64         `json:"archivedAt,omitempty"`
	ArchiveVerifiedAt int64         `json:"archiveVerifiedAt,omitempty"`
	ArchiveExpiresAt  int64         `json:"archiveExpiresAt,omitempty"`
	LastRepinnedAt    int64         `json:"lastRepinnedAt,omitempty"`
	LastFailedAt      int64         `json:"lastFailedAt,omitempty"`

	RetrievedByPoster bool   `json:"retrievedByPoster,omitempty"`
	RetrievedAt       int64  `json:"retrievedAt,omitempty"`
	RetrieverAddress  string `json:"retrieverAddress,omitempty"`
}

// Clone returns a deep copy of the submission.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Files != nil {
		dup.Files = make([]SubmissionFile, len(s.Files))
		copy(dup.Files, s.Files)
	}
	return &dup
}

// HasAggregatorID reports whether an oracle evaluation identifier is set.
func (s *Submission) HasAggregatorID() bool {
	id := strings.TrimSpace(s.VerdiktaAggID)
	return id != "" && id != ZeroAggregatorID
}

// CopyLocalFieldsFrom preserves the local-only and archival fields when a
// chain read rebuilds the submission record.
func (s *Submission) CopyLocalFieldsFrom(prev *Submission) {
	if prev == nil {
		return
	}
	if prev.Files != nil {
		s.Files = make([]SubmissionFile, len(prev.Files))
		copy(s.Files, prev.Files)
	}
	s.ArchiveStatus = prev.ArchiveStatus
	s.ArchivedAt = prev.ArchivedAt
	s.ArchiveVerifiedAt = prev.ArchiveVerifiedAt
	s.ArchiveExpiresAt = prev.ArchiveExpiresAt
	s.LastRepinnedAt = prev.LastRepinnedAt
	s.LastFailedAt = prev.LastFailedAt
	s.RetrievedByPoster = prev.RetrievedByPoster
	s.RetrievedAt = prev.RetrievedAt
	s.RetrieverAddress = prev.RetrieverAddress
}
