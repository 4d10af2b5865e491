package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

func TestSnapshot_Clone_DeepCopy(t *testing.T) {
	snap := &Snapshot{
		NextID: 5,
		Jobs: []*model.Job{
			{JobID: 1, Title: "first", Submissions: []*model.Submission{{SubmissionID: 0, Hunter: "0xaaa"}}},
		},
	}

	dup := snap.Clone()
	require.NotNil(t, dup)

	dup.NextID = 99
	dup.Jobs[0].Title = "mutated"
	dup.Jobs[0].Submissions[0].Hunter = "0xbbb"

	assert.Equal(t, int64(5), snap.NextID)
	assert.Equal(t, "first", snap.Jobs[0].Title)
	assert.Equal(t, "0xaaa", snap.Jobs[0].Submissions[0].Hunter)
}

func TestSnapshot_Clone_Nil(t *testing.T) {
	var snap *Snapshot
	assert.Nil(t, snap.Clone())
}

func TestSnapshot_FindJob(t *testing.T) {
	snap := &Snapshot{Jobs: []*model.Job{{JobID: 1}, nil, {JobID: 3}}}

	require.NotNil(t, snap.FindJob(3))
	assert.Nil(t, snap.FindJob(2))
}

func TestSnapshot_FindJobOnContract(t *testing.T) {
	const (
		oldContract  = "0x00000000000000000000000000000000000000bb"
		liveContract = "0x00000000000000000000000000000000000000aa"
	)
	orphan := &model.Job{JobID: 1, ContractAddress: oldContract, Status: model.JobStatusOrphaned}
	live := &model.Job{JobID: 1, ContractAddress: liveContract, Status: model.JobStatusOpen}
	snap := &Snapshot{Jobs: []*model.Job{orphan, live}}

	// The contract-swap orphan is listed first; the exact match still wins.
	assert.Same(t, live, snap.FindJobOnContract(liveContract, 1))
	// No exact match: the non-orphaned record beats the orphan.
	assert.Same(t, live, snap.FindJobOnContract("0x000000000000000000000000000000000000dead", 1))
	// The orphan is still reachable when nothing else carries the id.
	assert.Same(t, orphan, (&Snapshot{Jobs: []*model.Job{orphan}}).FindJobOnContract(liveContract, 1))
	assert.Nil(t, snap.FindJobOnContract(liveContract, 9))
}

func TestSnapshot_IndexJobs_SyncedWins(t *testing.T) {
	const contract = "0x00000000000000000000000000000000000000aa"
	synced := &model.Job{JobID: 1, ContractAddress: contract, SyncedFromBlockchain: true}
	local := &model.Job{JobID: 1, ContractAddress: contract}
	other := &model.Job{JobID: 2, ContractAddress: contract}

	tests := []struct {
		name string
		jobs []*model.Job
	}{
		{name: "synced first", jobs: []*model.Job{synced, local, other}},
		{name: "synced last", jobs: []*model.Job{local, synced, other}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := &Snapshot{Jobs: tt.jobs}
			index := snap.IndexJobs()

			require.Len(t, index, 2)
			assert.Same(t, synced, index[JobKey{ContractAddress: contract, JobID: 1}])
			assert.Same(t, other, index[JobKey{ContractAddress: contract, JobID: 2}])
		})
	}
}

func TestSnapshot_Normalize(t *testing.T) {
	snap := &Snapshot{Jobs: []*model.Job{
		{
			JobID:  1,
			Status: "completed",
			Submissions: []*model.Submission{
				{SubmissionID: 0, Status: "PASSED"},
				{SubmissionID: 1, Status: model.SubmissionStatusApproved},
			},
		},
		{JobID: 2, Status: model.JobStatusOpen},
	}}

	assert.True(t, snap.Normalize())
	assert.Equal(t, model.JobStatusAwarded, snap.Jobs[0].Status)
	assert.Equal(t, model.SubmissionStatusApproved, snap.Jobs[0].Submissions[0].Status)

	// Already canonical: second pass reports no change.
	assert.False(t, snap.Normalize())
}
