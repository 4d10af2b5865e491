package core

import (
	"context"
)

// This file contains the port definitions between services and adapters.

// Store is the single-writer persistence port for the mirror snapshot.
// ReadSnapshot never returns a partially written state; Write replaces the
// whole document atomically; Update serializes read-modify-write cycles under
// the store's write lock.
type Store interface {
	ReadSnapshot(ctx context.Context) (*Snapshot, error)
	Write(ctx context.Context, snapshot *Snapshot) error
	Update(ctx context.Context, mutate func(*Snapshot) error) error
}

// ChainReader is the read-only facade over the bounty contract. No caching;
// callers batch as needed.
type ChainReader interface {
	BountyCount(ctx context.Context) (int64, error)
	GetBounty(ctx context.Context, bountyID int64) (*Bounty, error)
	GetSubmission(ctx context.Context, bountyID, submissionID int64) (*ChainSubmission, error)
	// GetLogs returns decoded events in [fromBlock, toBlock]. Transient RPC
	// failures are retried with exponential backoff inside the adapter.
	GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]Event, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EvaluationReader reads oracle verdicts from the secondary contract.
// Calls are never retried; a "not ready" response surfaces as OK=false with a
// nil error so status mapping can treat it as still pending.
type EvaluationReader interface {
	GetEvaluation(ctx context.Context, aggregatorID string) (*Evaluation, error)
}

// ReceiptReader recovers a bounty id from the transaction that created it.
// Used by the resolve fast path.
type ReceiptReader interface {
	// BountyIDFromReceipt returns the bounty id from a BountyCreated log
	// emitted by the given contract in the transaction, or found=false when
	// the receipt has no such log.
	BountyIDFromReceipt(ctx context.Context, txHash, contractAddress string) (bountyID int64, found bool, err error)
}

// PinMetadata annotates a pin-by-hash request so operators can trace pins
// back to their submission.
type PinMetadata struct {
	Name         string
	JobID        int64
	SubmissionID int64
}

// Pinner operates the remote pinning API. VerifyPin is conservative: the
// adapter reports pinned=true unless the service explicitly answered with an
// empty result set, so outages never look like missing content. The returned
// error is informational; callers log it and trust the boolean.
type Pinner interface {
	VerifyPin(ctx context.Context, cid string) (pinned bool, err error)
	PinByHash(ctx context.Context, cid string, meta PinMetadata) (ok bool, err error)
}

// BountyMetadata is the human-readable metadata extracted from an evaluation
// package.
type BountyMetadata struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	WorkProductType string `json:"workProductType"`
}

// MetadataFetcher retrieves and parses the metadata package for a CID.
// Best effort: returns nil on any failure so callers keep placeholders.
type MetadataFetcher interface {
	Fetch(ctx context.Context, cid string) *BountyMetadata
}
