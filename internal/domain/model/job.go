// Package model defines the domain entities mirrored from the bounty contract.
package model

import (
	"strconv"
	"strings"
)

// JobStatus is the canonical user-facing status of a mirrored job.
type JobStatus string

const (
	JobStatusOpen      JobStatus = "OPEN"
	JobStatusExpired   JobStatus = "EXPIRED"
	JobStatusAwarded   JobStatus = "AWARDED"
	JobStatusClosed    JobStatus = "CLOSED"
	JobStatusOrphaned  JobStatus = "ORPHANED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Valid returns true if the job status is one of the canonical values.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusExpired, JobStatusAwarded, JobStatusClosed,
		JobStatusOrphaned, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether the status excludes the job from the orphan pass.
func (s JobStatus) Terminal() bool {
	return s == JobStatusOrphaned || s == JobStatusClosed
}

// NormalizeJobStatus maps historical status spellings onto the canonical
// uppercase set. Older snapshots used "COMPLETED" for awarded bounties and
// stored statuses in mixed case.
func NormalizeJobStatus(raw string) JobStatus {
	upper := JobStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch upper {
	case "COMPLETED":
		return JobStatusAwarded
	case "":
		return JobStatusOpen
	default:
		if upper.Valid() {
			return upper
		}
		return upper // preserved as-is; Valid() callers decide
	}
}

// OrphanReason explains why a job was detached from the authoritative contract.
type OrphanReason string

const (
	OrphanReasonDifferentContract OrphanReason = "different_contract"
	OrphanReasonNotFoundOnChain   OrphanReason = "not_found_on_chain"
	OrphanReasonNeverDeployed     OrphanReason = "never_deployed"
)

// Valid returns true if the orphan reason is one of the supported values.
func (r OrphanReason) Valid() bool {
	switch r {
	case OrphanReasonDifferentContract, OrphanReasonNotFoundOnChain, OrphanReasonNeverDeployed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the orphan reason.
func (r OrphanReason) String() string {
	return string(r)
}

// JuryNode is an opaque local-only jury configuration entry. It is never
// mirrored from chain.
type JuryNode struct {
	Address string `json:"address,omitempty"`
	ClassID int64  `json:"classId,omitempty"`
	Weight  int64  `json:"weight,omitempty"`
}

// Job is the local mirror of one on-chain bounty. A job can also exist purely
// locally before it is deployed; such jobs carry OnChain=false until a local
// mutator links them to a confirmed bounty index.
type Job struct {
	// JobID equals the on-chain bounty index once SyncedFromBlockchain.
	JobID int64 `json:"jobId"`

	// OnChain is true iff the job has a confirmed chain id.
	OnChain bool `json:"onChain"`

	// ContractAddress is the lower-cased address of the contract version this
	// job belongs to. Empty for legacy or unsynced jobs.
	ContractAddress string `json:"contractAddress,omitempty"`

	Creator string `json:"creator,omitempty"`

	Title           string `json:"title,omitempty"`
	Description     string `json:"description,omitempty"`
	WorkProductType string `json:"workProductType,omitempty"`

	// BountyAmount is the payout denominated in the chain's base currency,
	// serialized as a decimal string.
	BountyAmount    string   `json:"bountyAmount,omitempty"`
	BountyAmountUSD *float64 `json:"bountyAmountUSD,omitempty"`

	// Threshold is the acceptance percentage (0..100) a submission must reach.
	Threshold int64 `json:"threshold"`

	EvaluationCID string     `json:"evaluationCid,omitempty"`
	ClassID       int64      `json:"classId,omitempty"`
	JuryNodes     []JuryNode `json:"juryNodes,omitempty"`

	SubmissionOpenTime  int64 `json:"submissionOpenTime,omitempty"`
	SubmissionCloseTime int64 `json:"submissionCloseTime,omitempty"`

	Status JobStatus `json:"status"`

	Winner string `json:"winner,omitempty"`

	// SubmissionCount is chain-authoritative once synced.
	SubmissionCount int64 `json:"submissionCount"`

	// Submissions is ordered by on-chain index; SubmissionID equals position.
	Submissions []*Submission `json:"submissions"`

	SyncedFromBlockchain bool  `json:"syncedFromBlockchain"`
	LastSyncedAt         int64 `json:"lastSyncedAt,omitempty"`

	OrphanedAt   int64        `json:"orphanedAt,omitempty"`
	OrphanReason OrphanReason `json:"orphanReason,omitempty"`

	// TxHash and BlockNumber are set by local mutators once the creating
	// transaction confirms. The reconciler never overwrites non-empty values.
	TxHash      string `json:"txHash,omitempty"`
	BlockNumber int64  `json:"blockNumber,omitempty"`

	// LegacyOnChainID carries the deprecated onChainId alias found in old
	// snapshots. It is removed on first sync; JobID is the on-chain index.
	LegacyOnChainID *int64 `json:"onChainId,omitempty"`
	// LegacyJobID carries the deprecated legacyJobId alias from old snapshots.
	LegacyJobID *int64 `json:"legacyJobId,omitempty"`
}

// Clone returns a deep copy of the job, including submissions. Snapshot
// readers mutate copies off-lock and commit through the store's write
// discipline, so aliasing between snapshots must never happen.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	dup := *j
	if j.BountyAmountUSD != nil {
		v := *j.BountyAmountUSD
		dup.BountyAmountUSD = &v
	}
	if j.LegacyOnChainID != nil {
		v := *j.LegacyOnChainID
		dup.LegacyOnChainID = &v
	}
	if j.LegacyJobID != nil {
		v := *j.LegacyJobID
		dup.LegacyJobID = &v
	}
	if j.JuryNodes != nil {
		dup.JuryNodes = make([]JuryNode, len(j.JuryNodes))
		copy(dup.JuryNodes, j.JuryNodes)
	}
	if j.Submissions != nil {
		dup.Submissions = make([]*Submission, len(j.Submissions))
		for i, sub := range j.Submissions {
			dup.Submissions[i] = sub.Clone()
		}
	}
	return &dup
}

// FindSubmission returns the submission with the given id, or nil.
func (j *Job) FindSubmission(submissionID int64) *Submission {
	for _, sub := range j.Submissions {
		if sub != nil && sub.SubmissionID == submissionID {
			return sub
		}
	}
	return nil
}

// RenumberSubmissions restores the dense 0-based id sequence after a removal.
func (j *Job) RenumberSubmissions() {
	for i, sub := range j.Submissions {
		if sub != nil {
			sub.SubmissionID = int64(i)
		}
	}
}

// HasLegacyAliases reports whether deprecated id aliases are still present.
func (j *Job) HasLegacyAliases() bool {
	return j.LegacyOnChainID != nil || j.LegacyJobID != nil
}

// ClearLegacyAliases removes the deprecated onChainId/legacyJobId fields.
func (j *Job) ClearLegacyAliases() {
	j.LegacyOnChainID = nil
	j.LegacyJobID = nil
}

// PlaceholderDescription is stored when a bounty is first mirrored before its
// metadata package could be fetched. The reconciler retries the metadata
// fetch while the description still equals this value.
const PlaceholderDescription = "Fetched from blockchain"

// PlaceholderTitle returns the default title for a mirrored bounty with no
// fetched metadata.
func PlaceholderTitle(bountyID int64) string {
	return "Bounty #" + strconv.FormatInt(bountyID, 10)
}
