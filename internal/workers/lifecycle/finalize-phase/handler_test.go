package finalizephase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) FinalizePhase(ctx context.Context, cycleID string, phase review.Phase) (*review.PhaseConfig, error) {
	args := m.Called(ctx, cycleID, phase)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*review.PhaseConfig), args.Error(1)
}

func TestFinalizePhase_Execute(t *testing.T) {
	applied := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	svc := new(MockService)
	svc.On("FinalizePhase", mock.Anything, "cycle-1", review.PhaseApplication).Return(&review.PhaseConfig{
		CycleID:         "cycle-1",
		Phase:           review.PhaseApplication,
		Status:          review.PhaseStatusFinalized,
		CutoffAppliedAt: &applied,
		Version:         5,
	}, nil)

	h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t), nil)
	out, err := h.Execute(context.Background(), &jobvars.PhaseRef{CycleID: "cycle-1", Phase: review.PhaseApplication})

	require.NoError(t, err)
	assert.Equal(t, review.PhaseStatusFinalized, out.PhaseStatus)
	assert.Equal(t, int64(5), out.PhaseConfigVersion)
	assert.Equal(t, &applied, out.CutoffAppliedAt)
}

func TestFinalizePhase_Execute_NoCutoff(t *testing.T) {
	svc := new(MockService)
	svc.On("FinalizePhase", mock.Anything, "cycle-1", review.PhaseApplication).
		Return(nil, apperrors.NewValidationErrorf("no cutoff has been applied to %s", "application"))

	h := NewHandler(LoadConfig(), svc, logger.NewTestLogger(t), nil)
	_, err := h.Execute(context.Background(), &jobvars.PhaseRef{CycleID: "cycle-1", Phase: review.PhaseApplication})

	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
}
