package status_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/model"
	"github.com/verdikta/verdikta-applications-sub002/internal/domain/status"
	"github.com/verdikta/verdikta-applications-sub002/internal/mocks"
)

const testAggID = "0x1234567890123456789012345678901234567890123456789012345678901234"

func TestForBounty(t *testing.T) {
	const deadline = int64(1000)

	tests := []struct {
		name string
		raw  uint8
		now  int64
		want model.JobStatus
	}{
		{name: "open before deadline", raw: core.RawBountyOpen, now: 500, want: model.JobStatusOpen},
		{name: "open exactly at deadline", raw: core.RawBountyOpen, now: deadline, want: model.JobStatusOpen},
		{name: "open one past deadline", raw: core.RawBountyOpen, now: deadline + 1, want: model.JobStatusExpired},
		{name: "awarded ignores deadline", raw: core.RawBountyAwarded, now: deadline + 100, want: model.JobStatusAwarded},
		{name: "closed ignores deadline", raw: core.RawBountyClosed, now: 500, want: model.JobStatusClosed},
		{name: "unknown enum defaults open", raw: 9, now: 500, want: model.JobStatusOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.ForBounty(tt.raw, deadline, tt.now))
		})
	}
}

func TestIsAcceptingSubmissions(t *testing.T) {
	assert.True(t, status.IsAcceptingSubmissions(core.RawBountyOpen, 1000, 1000))
	assert.False(t, status.IsAcceptingSubmissions(core.RawBountyOpen, 1000, 1001))
	assert.False(t, status.IsAcceptingSubmissions(core.RawBountyAwarded, 1000, 500))
}

func TestCanBeClosed(t *testing.T) {
	assert.True(t, status.CanBeClosed(core.RawBountyOpen, 1000, 1001))
	assert.False(t, status.CanBeClosed(core.RawBountyOpen, 1000, 1000))
	assert.False(t, status.CanBeClosed(core.RawBountyClosed, 1000, 2000))
}

func TestMapper_Apply_NoOracle(t *testing.T) {
	mapper := status.NewMapper(status.MapperOptions{})

	tests := []struct {
		name string
		sub  *model.Submission
		want model.SubmissionStatus
	}{
		{
			name: "prepared keeps local draft state",
			sub: &model.Submission{
				OnChainStatus: model.ChainSubmissionPrepared,
				Status:        model.SubmissionStatusPrepared,
			},
			want: model.SubmissionStatusPrepared,
		},
		{
			name: "prepared with no local state becomes pending",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionPrepared},
			want: model.SubmissionStatusPendingEvaluation,
		},
		{
			name: "pending without aggregator stays pending",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionPendingVerdikta},
			want: model.SubmissionStatusPendingEvaluation,
		},
		{
			name: "failed maps to rejected",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionFailed},
			want: model.SubmissionStatusRejected,
		},
		{
			name: "passed paid maps to approved",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionPassedPaid},
			want: model.SubmissionStatusApproved,
		},
		{
			name: "passed unpaid maps to approved",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionPassedUnpaid},
			want: model.SubmissionStatusApproved,
		},
		{
			name: "out of range enum maps to unknown",
			sub:  &model.Submission{OnChainStatus: model.ChainSubmissionStatus(7)},
			want: model.SubmissionStatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapper.Apply(context.Background(), tt.sub, 70)
			assert.Equal(t, tt.want, tt.sub.Status)
		})
	}
}

func TestMapper_Apply_OracleVerdict(t *testing.T) {
	tests := []struct {
		name           string
		eval           *core.Evaluation
		evalErr        error
		threshold      int64
		wantStatus     model.SubmissionStatus
		wantAcceptance int64
		wantRejection  int64
	}{
		{
			name:           "acceptance above threshold accepted",
			eval:           &core.Evaluation{OK: true, Scores: []int64{150000, 850000}},
			threshold:      70,
			wantStatus:     model.SubmissionStatusAcceptedPendingClaim,
			wantAcceptance: 85,
			wantRejection:  15,
		},
		{
			name:           "acceptance exactly at threshold accepted",
			eval:           &core.Evaluation{OK: true, Scores: []int64{300000, 700000}},
			threshold:      70,
			wantStatus:     model.SubmissionStatusAcceptedPendingClaim,
			wantAcceptance: 70,
			wantRejection:  30,
		},
		{
			name:           "acceptance below threshold rejected pending",
			eval:           &core.Evaluation{OK: true, Scores: []int64{310000, 690000}},
			threshold:      70,
			wantStatus:     model.SubmissionStatusRejectedPendingFinalization,
			wantAcceptance: 69,
			wantRejection:  31,
		},
		{
			name:       "not ready stays pending",
			eval:       &core.Evaluation{OK: false},
			threshold:  70,
			wantStatus: model.SubmissionStatusPendingEvaluation,
		},
		{
			name:       "lookup error stays pending",
			evalErr:    errors.New("rpc timeout"),
			threshold:  70,
			wantStatus: model.SubmissionStatusPendingEvaluation,
		},
		{
			name:       "too few scores stays pending",
			eval:       &core.Evaluation{OK: true, Scores: []int64{500000}},
			threshold:  70,
			wantStatus: model.SubmissionStatusPendingEvaluation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			evals := mocks.NewMockEvaluationReader(ctrl)
			evals.EXPECT().
				GetEvaluation(gomock.Any(), testAggID).
				Return(tt.eval, tt.evalErr)

			mapper := status.NewMapper(status.MapperOptions{Evaluations: evals})
			sub := &model.Submission{
				OnChainStatus: model.ChainSubmissionPendingVerdikta,
				VerdiktaAggID: testAggID,
			}
			mapper.Apply(context.Background(), sub, tt.threshold)

			assert.Equal(t, tt.wantStatus, sub.Status)
			assert.Equal(t, tt.wantAcceptance, sub.Acceptance)
			assert.Equal(t, tt.wantRejection, sub.Rejection)
		})
	}
}

func TestMapper_Apply_JustificationCIDs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	evals := mocks.NewMockEvaluationReader(ctrl)
	evals.EXPECT().
		GetEvaluation(gomock.Any(), testAggID).
		Return(&core.Evaluation{
			OK:                true,
			Scores:            []int64{100000, 900000},
			JustificationCIDs: "QmJustification",
		}, nil)

	mapper := status.NewMapper(status.MapperOptions{Evaluations: evals})
	sub := &model.Submission{
		OnChainStatus: model.ChainSubmissionPendingVerdikta,
		VerdiktaAggID: testAggID,
	}
	mapper.Apply(context.Background(), sub, 50)

	assert.Equal(t, "QmJustification", sub.JustificationCIDs)
	assert.Equal(t, model.SubmissionStatusAcceptedPendingClaim, sub.Status)
}
