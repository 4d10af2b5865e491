package model

import (
	"errors"
	"regexp"
	"strings"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	cidPattern     = regexp.MustCompile(`^[A-Za-z0-9]{10,}$`)
)

// ValidAddress reports whether s looks like a 20-byte hex chain address.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(strings.TrimSpace(s))
}

// ValidCID reports whether s looks like a content identifier. Both CIDv0
// (Qm...) and CIDv1 (bafy...) are base-encoded alphanumeric strings; the check
// is intentionally loose because gateways are the final authority.
func ValidCID(s string) bool {
	return cidPattern.MatchString(strings.TrimSpace(s))
}

// CreateJobRequest describes a purely local job created ahead of its on-chain
// deployment.
type CreateJobRequest struct {
	Creator         string     `json:"creator"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	WorkProductType string     `json:"workProductType,omitempty"`
	BountyAmount    string     `json:"bountyAmount,omitempty"`
	BountyAmountUSD *float64   `json:"bountyAmountUSD,omitempty"`
	Threshold       int64      `json:"threshold"`
	EvaluationCID   string     `json:"evaluationCid,omitempty"`
	ClassID         int64      `json:"classId,omitempty"`
	JuryNodes       []JuryNode `json:"juryNodes,omitempty"`

	SubmissionOpenTime  int64 `json:"submissionOpenTime,omitempty"`
	SubmissionCloseTime int64 `json:"submissionCloseTime,omitempty"`
}

// Normalize trims and lower-cases fields that identify chain entities.
func (r *CreateJobRequest) Normalize() {
	r.Creator = strings.ToLower(strings.TrimSpace(r.Creator))
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.WorkProductType = strings.TrimSpace(r.WorkProductType)
	r.BountyAmount = strings.TrimSpace(r.BountyAmount)
	r.EvaluationCID = strings.TrimSpace(r.EvaluationCID)
}

// Validate validates the CreateJobRequest fields.
func (r *CreateJobRequest) Validate() error {
	if r.Creator == "" {
		return errors.New("creator is required")
	}
	if !ValidAddress(r.Creator) {
		return errors.New("creator must be a hex address")
	}
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.Threshold < 0 || r.Threshold > 100 {
		return errors.New("threshold must be between 0 and 100")
	}
	if r.EvaluationCID != "" && !ValidCID(r.EvaluationCID) {
		return errors.New("evaluationCid is not a valid CID")
	}
	return nil
}

// AttachBountyParams links a local job to its confirmed on-chain bounty.
type AttachBountyParams struct {
	JobID       int64
	BountyID    int64
	TxHash      string
	BlockNumber int64
}

// ResolveBountyParams carries the hints used to recover a bounty index when
// the caller only knows the creating transaction or the job's shape.
type ResolveBountyParams struct {
	JobID         int64
	TxHash        string
	Creator       string
	EvaluationCID string
	Deadline      int64
}

// MarkRetrievedParams records that the bounty poster fetched a submission's
// content package.
type MarkRetrievedParams struct {
	JobID        int64
	SubmissionID int64
	Retriever    string
}
