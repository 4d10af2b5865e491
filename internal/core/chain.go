package core

import (
	"math/big"

	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

// Raw bounty status enum stored by the contract.
const (
	RawBountyOpen    uint8 = 0
	RawBountyAwarded uint8 = 1
	RawBountyClosed  uint8 = 2
)

// Bounty is the decoded on-chain bounty struct.
type Bounty struct {
	ID                 int64
	Creator            string
	EvaluationCID      string
	ClassID            int64
	Threshold          int64
	PayoutWei          *big.Int
	CreatedAt          int64
	SubmissionDeadline int64
	RawStatus          uint8
	Winner             string
	SubmissionCount    int64
}

// ChainSubmission is the decoded on-chain submission struct.
type ChainSubmission struct {
	BountyID      int64
	SubmissionID  int64
	Hunter        string
	EvaluationCID string
	HunterCID     string
	AggregatorID  string
	RawStatus     model.ChainSubmissionStatus
	SubmittedAt   int64
	FinalizedAt   int64
}

// Evaluation is a decoded oracle verdict. Scores are 6-decimal fixed-point
// integers (0..1000000); divide by 10000 for 0..100 percentages. Index 0 is
// the rejection score, index 1 the acceptance score.
type Evaluation struct {
	Scores            []int64
	JustificationCIDs string
	OK                bool
}

// AcceptancePercent returns the acceptance score as a 0..100 percentage.
func (e *Evaluation) AcceptancePercent() int64 {
	if len(e.Scores) < 2 {
		return 0
	}
	return e.Scores[1] / 10000
}

// RejectionPercent returns the rejection score as a 0..100 percentage.
func (e *Evaluation) RejectionPercent() int64 {
	if len(e.Scores) < 1 {
		return 0
	}
	return e.Scores[0] / 10000
}

// EventKind names the contract events the mirror understands.
type EventKind string

const (
	EventBountyCreated       EventKind = "BountyCreated"
	EventBountyClosed        EventKind = "BountyClosed"
	EventSubmissionPrepared  EventKind = "SubmissionPrepared"
	EventWorkSubmitted       EventKind = "WorkSubmitted"
	EventSubmissionFinalized EventKind = "SubmissionFinalized"
	EventPayoutSent          EventKind = "PayoutSent"
	EventLinkRefunded        EventKind = "LinkRefunded"
)

// Event is a decoded contract log.
type Event struct {
	Kind         EventKind
	BountyID     int64
	SubmissionID int64
	BlockNumber  uint64
	TxHash       string
}
