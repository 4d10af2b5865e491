package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jobs.json")
	store, err := New(Options{Path: path})
	require.NoError(t, err)
	return store, path
}

func TestNew_MissingFileStartsEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.ReadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Jobs)
	assert.Zero(t, snap.NextID)
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestNew_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := New(Options{Path: path})
	require.Error(t, err)
}

func TestStore_WriteReadRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, path := newTestStore(t)

	snap := &core.Snapshot{
		NextID: 4,
		Jobs: []*model.Job{
			{JobID: 3, Title: "mirror me", Status: model.JobStatusOpen},
		},
	}
	require.NoError(t, store.Write(ctx, snap))

	// Mutating the caller's snapshot after Write must not leak into the store.
	snap.Jobs[0].Title = "mutated"

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, "mirror me", got.Jobs[0].Title)
	assert.Equal(t, int64(4), got.NextID)

	// A fresh store over the same file sees the persisted state.
	reopened, err := New(Options{Path: path})
	require.NoError(t, err)
	got2, err := reopened.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got2.Jobs, 1)
	assert.Equal(t, "mirror me", got2.Jobs[0].Title)
}

func TestStore_Write_NilSnapshot(t *testing.T) {
	store, _ := newTestStore(t)
	require.Error(t, store.Write(context.Background(), nil))
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	err := store.Update(ctx, func(s *core.Snapshot) error {
		s.Jobs = append(s.Jobs, &model.Job{JobID: s.NextID, Title: "draft", Status: model.JobStatusOpen})
		s.NextID++
		return nil
	})
	require.NoError(t, err)

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Jobs, 1)
	assert.Equal(t, int64(1), got.NextID)
}

func TestStore_Update_MutateErrorLeavesStateIntact(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Write(ctx, &core.Snapshot{
		NextID: 1,
		Jobs:   []*model.Job{{JobID: 0, Title: "keep", Status: model.JobStatusOpen}},
	}))

	err := store.Update(ctx, func(s *core.Snapshot) error {
		s.Jobs[0].Title = "discard"
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Jobs[0].Title)
}

func TestStore_ReadSnapshot_NormalizesLegacyStatuses(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.json")

	legacy := &core.Snapshot{
		NextID: 2,
		Jobs: []*model.Job{
			{
				JobID:  1,
				Status: "completed",
				Submissions: []*model.Submission{
					{SubmissionID: 0, Status: "PASSED"},
				},
			},
		},
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	store, err := New(Options{Path: path})
	require.NoError(t, err)

	got, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusAwarded, got.Jobs[0].Status)
	assert.Equal(t, model.SubmissionStatusApproved, got.Jobs[0].Submissions[0].Status)

	// Normalization re-persists: the raw document no longer carries the
	// legacy spellings.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "completed")
	assert.NotContains(t, string(raw), "PASSED")
}
