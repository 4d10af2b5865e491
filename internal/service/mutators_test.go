package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/status"
	apperrors "github.com/verdikta/verdikta-applications-sub002/internal/errors"
)

var mutNow = time.Unix(1_700_000_000, 0)

type fakeReceipts struct {
	bountyID int64
	found    bool
	err      error

	calls int
}

func (f *fakeReceipts) BountyIDFromReceipt(context.Context, string, string) (int64, bool, error) {
	f.calls++
	return f.bountyID, f.found, f.err
}

func newTestMutators(t *testing.T, store core.Store, chain core.ChainReader, receipts core.ReceiptReader) *Mutators {
	t.Helper()
	m, err := NewMutators(MutatorsOptions{
		Store:           store,
		Chain:           chain,
		Receipts:        receipts,
		Mapper:          status.NewMapper(status.MapperOptions{}),
		ContractAddress: reconContract,
		Now:             func() time.Time { return mutNow },
	})
	require.NoError(t, err)
	return m
}

func TestCreateLocalJob(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{NextID: 5, Jobs: []*model.Job{}})
	m := newTestMutators(t, store, nil, nil)

	job, err := m.CreateLocalJob(ctx, &model.CreateJobRequest{
		Creator:   creatorAddr,
		Title:     "  Design a logo  ",
		Threshold: 70,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), job.JobID)
	assert.False(t, job.OnChain)
	assert.Equal(t, reconContract, job.ContractAddress)
	assert.Equal(t, "Design a logo", job.Title)
	assert.Equal(t, model.JobStatusOpen, job.Status)

	snap, _ := store.ReadSnapshot(ctx)
	assert.Equal(t, int64(6), snap.NextID)
	require.Len(t, snap.Jobs, 1)
}

func TestCreateLocalJob_ValidationError(t *testing.T) {
	store := newMemStore(nil)
	m := newTestMutators(t, store, nil, nil)

	_, err := m.CreateLocalJob(context.Background(), &model.CreateJobRequest{Title: "no creator"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, store.commits)
}

func TestAttachBountyID(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 4,
		Jobs:   []*model.Job{{JobID: 3, Status: model.JobStatusOpen}},
	})
	m := newTestMutators(t, store, nil, nil)

	job, err := m.AttachBountyID(ctx, model.AttachBountyParams{
		JobID:       3,
		BountyID:    17,
		TxHash:      "0xcreate",
		BlockNumber: 900,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(17), job.JobID)
	assert.True(t, job.OnChain)
	assert.Equal(t, "0xcreate", job.TxHash)
	assert.Equal(t, int64(900), job.BlockNumber)
	assert.Equal(t, reconContract, job.ContractAddress)

	snap, _ := store.ReadSnapshot(ctx)
	assert.Equal(t, int64(18), snap.NextID)
}

func TestAttachBountyID_NotFound(t *testing.T) {
	store := newMemStore(nil)
	m := newTestMutators(t, store, nil, nil)

	_, err := m.AttachBountyID(context.Background(), model.AttachBountyParams{JobID: 9, BountyID: 1})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResolveBountyID_FastPath(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Status: model.JobStatusOpen}},
	})
	receipts := &fakeReceipts{bountyID: 12, found: true}
	m := newTestMutators(t, store, &fakeChain{}, receipts)

	job, err := m.ResolveBountyID(ctx, model.ResolveBountyParams{JobID: 0, TxHash: "0xdeploy"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), job.JobID)
	assert.True(t, job.OnChain)
	assert.Equal(t, 1, receipts.calls)
}

func TestResolveBountyID_SlowPathClosestDeadline(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Status: model.JobStatusOpen}},
	})

	deadline := mutNow.Unix() + 3600
	near := openBounty(1)
	near.SubmissionDeadline = deadline + 20
	far := openBounty(0)
	far.SubmissionDeadline = deadline + 200
	wrongCreator := openBounty(2)
	wrongCreator.Creator = "0x9999999999999999999999999999999999999999"
	wrongCreator.SubmissionDeadline = deadline

	chain := &fakeChain{bounties: []*core.Bounty{far, near, wrongCreator}}
	// Receipt lookup fails; the scan takes over.
	receipts := &fakeReceipts{err: errors.New("receipt unavailable")}
	m := newTestMutators(t, store, chain, receipts)

	job, err := m.ResolveBountyID(ctx, model.ResolveBountyParams{
		JobID:    0,
		TxHash:   "0xdeploy",
		Creator:  creatorAddr,
		Deadline: deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.JobID)
}

func TestResolveBountyID_EvaluationCIDFilter(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Status: model.JobStatusOpen}},
	})

	deadline := mutNow.Unix() + 3600
	other := openBounty(0)
	other.EvaluationCID = "QmOtherPackage"
	other.SubmissionDeadline = deadline
	match := openBounty(1)
	match.SubmissionDeadline = deadline + 100

	chain := &fakeChain{bounties: []*core.Bounty{other, match}}
	m := newTestMutators(t, store, chain, nil)

	job, err := m.ResolveBountyID(ctx, model.ResolveBountyParams{
		JobID:         0,
		Creator:       creatorAddr,
		EvaluationCID: "QmEvalPackage",
		Deadline:      deadline,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.JobID)
}

func TestResolveBountyID_NoMatchDetachesJob(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, OnChain: true, Status: model.JobStatusOpen}},
	})
	chain := &fakeChain{}
	m := newTestMutators(t, store, chain, nil)

	_, err := m.ResolveBountyID(ctx, model.ResolveBountyParams{JobID: 0, Creator: creatorAddr})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	snap, _ := store.ReadSnapshot(ctx)
	assert.False(t, snap.Jobs[0].OnChain)
}

func TestRefreshSubmission(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{{
			JobID:     0,
			OnChain:   true,
			Threshold: 70,
			Status:    model.JobStatusOpen,
			Submissions: []*model.Submission{{
				SubmissionID: 0,
				Status:       model.SubmissionStatusPendingEvaluation,
				Files:        []model.SubmissionFile{{Name: "draft.zip"}},
			}},
		}},
	})
	chain := &fakeChain{
		submissions: map[int64][]*core.ChainSubmission{
			0: {{
				SubmissionID: 0,
				Hunter:       hunterAddr,
				HunterCID:    "QmWork",
				RawStatus:    model.ChainSubmissionPassedPaid,
			}},
		},
	}
	m := newTestMutators(t, store, chain, nil)

	sub, err := m.RefreshSubmission(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionStatusApproved, sub.Status)
	assert.Equal(t, hunterAddr, sub.Hunter)
	// Local-only fields survive the rebuild.
	require.Len(t, sub.Files, 1)
	assert.Equal(t, "draft.zip", sub.Files[0].Name)

	snap, _ := store.ReadSnapshot(ctx)
	assert.Equal(t, model.SubmissionStatusApproved, snap.Jobs[0].Submissions[0].Status)
}

func TestRefreshSubmission_JobNotOnChain(t *testing.T) {
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Status: model.JobStatusOpen}},
	})
	m := newTestMutators(t, store, &fakeChain{}, nil)

	_, err := m.RefreshSubmission(context.Background(), 0, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestCancelSubmission(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{{
			JobID:           0,
			Status:          model.JobStatusOpen,
			SubmissionCount: 2,
			Submissions: []*model.Submission{
				{SubmissionID: 0, Status: model.SubmissionStatusApproved},
				{SubmissionID: 1, Status: model.SubmissionStatusPrepared},
			},
		}},
	})
	m := newTestMutators(t, store, nil, nil)

	require.NoError(t, m.CancelSubmission(ctx, 0, 1))

	snap, _ := store.ReadSnapshot(ctx)
	job := snap.Jobs[0]
	require.Len(t, job.Submissions, 1)
	assert.Equal(t, int64(0), job.Submissions[0].SubmissionID)
	assert.Equal(t, int64(1), job.SubmissionCount)
}

func TestCancelSubmission_OnlyPrepared(t *testing.T) {
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{{
			JobID:  0,
			Status: model.JobStatusOpen,
			Submissions: []*model.Submission{
				{SubmissionID: 0, Status: model.SubmissionStatusApproved},
			},
		}},
	})
	m := newTestMutators(t, store, nil, nil)

	err := m.CancelSubmission(context.Background(), 0, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestCancelSubmission_NotFound(t *testing.T) {
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Status: model.JobStatusOpen}},
	})
	m := newTestMutators(t, store, nil, nil)

	err := m.CancelSubmission(context.Background(), 0, 4)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMarkAsRetrieved(t *testing.T) {
	ctx := context.Background()
	farExpiry := mutNow.Unix() + int64((30 * 24 * time.Hour).Seconds())
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{{
			JobID:  0,
			Status: model.JobStatusAwarded,
			Submissions: []*model.Submission{{
				SubmissionID:     0,
				HunterCID:        "QmWork",
				ArchiveExpiresAt: farExpiry,
			}},
		}},
	})
	m := newTestMutators(t, store, nil, nil)

	require.NoError(t, m.MarkAsRetrieved(ctx, model.MarkRetrievedParams{
		JobID:        0,
		SubmissionID: 0,
		Retriever:    "0xABCDEF1234567890ABCDEF1234567890ABCDEF12",
	}))

	wantExpiry := mutNow.Unix() + int64((7 * 24 * time.Hour).Seconds())
	snap, _ := store.ReadSnapshot(ctx)
	sub := snap.Jobs[0].Submissions[0]
	assert.True(t, sub.RetrievedByPoster)
	assert.Equal(t, mutNow.Unix(), sub.RetrievedAt)
	assert.Equal(t, "0xabcdef1234567890abcdef1234567890abcdef12", sub.RetrieverAddress)
	assert.Equal(t, wantExpiry, sub.ArchiveExpiresAt)
}

func TestMarkAsRetrieved_NeverExtendsWindow(t *testing.T) {
	ctx := context.Background()
	shortExpiry := mutNow.Unix() + 100
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{{
			JobID:  0,
			Status: model.JobStatusAwarded,
			Submissions: []*model.Submission{{
				SubmissionID:     0,
				HunterCID:        "QmWork",
				ArchiveExpiresAt: shortExpiry,
			}},
		}},
	})
	m := newTestMutators(t, store, nil, nil)

	require.NoError(t, m.MarkAsRetrieved(ctx, model.MarkRetrievedParams{JobID: 0, SubmissionID: 0}))

	snap, _ := store.ReadSnapshot(ctx)
	assert.Equal(t, shortExpiry, snap.Jobs[0].Submissions[0].ArchiveExpiresAt)
}

func TestMarkAsRetrieved_SkipsOrphanedContractTwin(t *testing.T) {
	ctx := context.Background()
	// After a contract swap the old-contract orphan shares id 0 with the live
	// mirror and is listed first; the mutation must land on the live record.
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{
			{
				JobID:           0,
				ContractAddress: otherContract,
				Status:          model.JobStatusOrphaned,
				OrphanReason:    model.OrphanReasonDifferentContract,
				Submissions:     []*model.Submission{{SubmissionID: 0, HunterCID: "QmOld"}},
			},
			{
				JobID:                0,
				ContractAddress:      reconContract,
				Status:               model.JobStatusAwarded,
				OnChain:              true,
				SyncedFromBlockchain: true,
				Submissions:          []*model.Submission{{SubmissionID: 0, HunterCID: "QmLive"}},
			},
		},
	})
	m := newTestMutators(t, store, nil, nil)

	require.NoError(t, m.MarkAsRetrieved(ctx, model.MarkRetrievedParams{JobID: 0, SubmissionID: 0}))

	snap, _ := store.ReadSnapshot(ctx)
	assert.False(t, snap.Jobs[0].Submissions[0].RetrievedByPoster)
	assert.True(t, snap.Jobs[1].Submissions[0].RetrievedByPoster)
}

func TestCancelSubmission_SkipsOrphanedContractTwin(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 1,
		Jobs: []*model.Job{
			{
				JobID:           0,
				ContractAddress: otherContract,
				Status:          model.JobStatusOrphaned,
				Submissions:     []*model.Submission{{SubmissionID: 0, Status: model.SubmissionStatusPrepared}},
			},
			{
				JobID:           0,
				ContractAddress: reconContract,
				Status:          model.JobStatusOpen,
				SubmissionCount: 1,
				Submissions:     []*model.Submission{{SubmissionID: 0, Status: model.SubmissionStatusPrepared}},
			},
		},
	})
	m := newTestMutators(t, store, nil, nil)

	require.NoError(t, m.CancelSubmission(ctx, 0, 0))

	snap, _ := store.ReadSnapshot(ctx)
	assert.Len(t, snap.Jobs[0].Submissions, 1)
	assert.Empty(t, snap.Jobs[1].Submissions)
}

func TestCleanupOrphans(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(&core.Snapshot{
		NextID: 3,
		Jobs: []*model.Job{
			{JobID: 0, Status: model.JobStatusOrphaned},
			{JobID: 1, Status: model.JobStatusOpen},
			{JobID: 2, Status: model.JobStatusOrphaned},
		},
	})
	m := newTestMutators(t, store, nil, nil)

	removed, err := m.CleanupOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	snap, _ := store.ReadSnapshot(ctx)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, int64(1), snap.Jobs[0].JobID)
}
