package syncrunner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdikta/verdikta-applications-sub002/internal/service"
)

type fakeSyncer struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeSyncer) SyncCycle(context.Context) (*service.CycleStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.errs) {
		err = f.errs[f.calls]
	}
	f.calls++
	if err != nil {
		return &service.CycleStats{Ran: true}, err
	}
	return &service.CycleStats{Ran: true}, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSweeper) Sweep(context.Context) (*service.SweepStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &service.SweepStats{Ran: true}, nil
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func repeatErr(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

func TestNew_RequiresSyncer(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRunner_SelfDisablesAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	syncer := &fakeSyncer{errs: repeatErr(errors.New("rpc down"), 10)}
	runner, err := New(Options{Syncer: syncer, MaxFailures: 5})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		runner.runOnce(ctx)
		assert.False(t, runner.Disabled())
	}
	runner.runOnce(ctx)
	assert.True(t, runner.Disabled())
}

func TestRunner_SuccessResetsFailureStreak(t *testing.T) {
	ctx := context.Background()
	someErr := errors.New("rpc down")
	syncer := &fakeSyncer{errs: []error{someErr, someErr, someErr, someErr, nil, someErr}}
	runner, err := New(Options{Syncer: syncer, MaxFailures: 5})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		runner.runOnce(ctx)
	}
	// Four failures, a success, then one failure: never reaches five in a row.
	assert.False(t, runner.Disabled())
}

func TestRunner_CancellationDoesNotCountAsFailure(t *testing.T) {
	ctx := context.Background()
	syncer := &fakeSyncer{errs: repeatErr(context.Canceled, 10)}
	runner, err := New(Options{Syncer: syncer, MaxFailures: 2})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		runner.runOnce(ctx)
	}
	assert.False(t, runner.Disabled())
}

func TestRunner_TriggerSyncReenables(t *testing.T) {
	ctx := context.Background()
	syncer := &fakeSyncer{errs: repeatErr(errors.New("rpc down"), 2)}
	runner, err := New(Options{Syncer: syncer, MaxFailures: 2})
	require.NoError(t, err)

	runner.runOnce(ctx)
	runner.runOnce(ctx)
	require.True(t, runner.Disabled())

	stats, err := runner.TriggerSync(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Ran)
	assert.False(t, runner.Disabled())

	// The streak was reset: two more failures are needed to disable again.
	assert.Equal(t, int32(0), runner.failures.Load())
}

func TestRunner_SuccessTriggersSweep(t *testing.T) {
	ctx := context.Background()
	syncer := &fakeSyncer{}
	sweeper := &fakeSweeper{}
	runner, err := New(Options{Syncer: syncer, Sweeper: sweeper})
	require.NoError(t, err)

	runner.runOnce(ctx)
	runner.sweepWG.Wait()
	assert.Equal(t, 1, sweeper.callCount())
}

func TestRunner_FailureSkipsSweep(t *testing.T) {
	ctx := context.Background()
	syncer := &fakeSyncer{errs: repeatErr(errors.New("rpc down"), 1)}
	sweeper := &fakeSweeper{}
	runner, err := New(Options{Syncer: syncer, Sweeper: sweeper})
	require.NoError(t, err)

	runner.runOnce(ctx)
	runner.sweepWG.Wait()
	assert.Equal(t, 0, sweeper.callCount())
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	syncer := &fakeSyncer{}
	runner, err := New(Options{Syncer: syncer})
	require.NoError(t, err)

	require.NoError(t, runner.Run(ctx))
	assert.Equal(t, 0, syncer.callCount())
}
