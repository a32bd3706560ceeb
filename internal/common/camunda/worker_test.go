package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitment-review/internal/common/camunda/camundatest"
	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/validation"
)

const testTaskType = "build-ranking"

func newTestRunner(t *testing.T, timeout time.Duration) *JobRunner {
	return NewJobRunner(testTaskType, timeout, logger.NewTestLogger(t), nil)
}

// ==========================
// JobRunner
// ==========================

func TestJobRunner_CompletesWithOutputVariables(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectComplete(42)
	job := camundatest.Job(t, 42, testTaskType, 3, map[string]interface{}{"cycleId": "cycle-1"})

	newTestRunner(t, time.Second).Run(client, job, func(ctx context.Context) (interface{}, error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return map[string]interface{}{"rankedCount": 4, "reviewsComplete": true}, nil
	})

	client.Gateway.AssertExpectations(t)
	vars := client.Completed(t)
	assert.Equal(t, float64(4), vars["rankedCount"])
	assert.Equal(t, true, vars["reviewsComplete"])
	client.Gateway.AssertNumberOfCalls(t, "FailJob", 0)
	client.Gateway.AssertNumberOfCalls(t, "ThrowError", 0)
}

func TestJobRunner_CompletesWithoutVariables(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectComplete(42)

	newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, 3, nil), func(context.Context) (interface{}, error) {
		return nil, nil
	})

	client.Gateway.AssertExpectations(t)
	assert.Empty(t, client.Completed(t))
}

func TestJobRunner_BusinessErrorThrowsBPMNError(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectThrow(42)

	newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, 3, nil), func(context.Context) (interface{}, error) {
		return nil, apperrors.NewPhaseLockedError("cycle-1", "application")
	})

	client.Gateway.AssertExpectations(t)
	thrown := client.Thrown(t)
	assert.Equal(t, "PHASE_LOCKED", thrown.ErrorCode)
	assert.Equal(t, "Phase is finalized", thrown.ErrorMessage)
	assert.Contains(t, thrown.Variables, `"originalErrorCode":"PHASE_LOCKED"`)
	client.Gateway.AssertNumberOfCalls(t, "CompleteJob", 0)
	client.Gateway.AssertNumberOfCalls(t, "FailJob", 0)
}

func TestJobRunner_RetryableErrorFailsJob(t *testing.T) {
	tests := []struct {
		name        string
		jobRetries  int32
		wantRetries int32
	}{
		{name: "capped by error policy", jobRetries: 5, wantRetries: 3},
		{name: "capped by broker retries", jobRetries: 2, wantRetries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := camundatest.NewJobClient()
			client.ExpectFail(42)

			newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, tt.jobRetries, nil), func(context.Context) (interface{}, error) {
				return nil, apperrors.NewStorageError("list reviews", errors.New("connection reset"))
			})

			client.Gateway.AssertExpectations(t)
			failed := client.Failed(t)
			assert.Equal(t, tt.wantRetries, failed.Retries)
			assert.Equal(t, "Storage operation failed", failed.ErrorMessage)
			client.Gateway.AssertNumberOfCalls(t, "ThrowError", 0)
		})
	}
}

func TestJobRunner_LastRetryThrows(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectThrow(42)

	newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, 0, nil), func(context.Context) (interface{}, error) {
		return nil, apperrors.NewStorageError("list reviews", errors.New("connection reset"))
	})

	client.Gateway.AssertExpectations(t)
	assert.Equal(t, "STORAGE_FAILED", client.Thrown(t).ErrorCode)
}

func TestJobRunner_UnknownErrorIsInternal(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectThrow(42)

	newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, 3, nil), func(context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	client.Gateway.AssertExpectations(t)
	assert.Contains(t, client.Thrown(t).Variables, string(apperrors.ErrCodeInternal))
}

func TestJobRunner_CompleteFailureIsNotRetriedAsJobError(t *testing.T) {
	client := camundatest.NewJobClient()
	client.ExpectComplete(42).Return(nil, errors.New("gateway unavailable"))

	newTestRunner(t, time.Second).Run(client, camundatest.Job(t, 42, testTaskType, 3, nil), func(context.Context) (interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	})

	client.Gateway.AssertExpectations(t)
	client.Gateway.AssertNumberOfCalls(t, "FailJob", 0)
	client.Gateway.AssertNumberOfCalls(t, "ThrowError", 0)
}

// ==========================
// ParseVariables
// ==========================

func TestParseVariables(t *testing.T) {
	schema := validation.JSONSchema{
		Type:     "object",
		Required: []string{"cycleId"},
		Properties: map[string]validation.Property{
			"cycleId": {Type: "string", MinLength: intPtr(1)},
		},
	}

	var dst struct {
		CycleID string `json:"cycleId"`
	}
	require.NoError(t, ParseVariables(camundatest.Job(t, 1, testTaskType, 3, map[string]interface{}{"cycleId": "cycle-1"}), schema, &dst))
	assert.Equal(t, "cycle-1", dst.CycleID)

	err := ParseVariables(camundatest.Job(t, 1, testTaskType, 3, map[string]interface{}{}), schema, &dst)
	assert.True(t, errors.Is(err, apperrors.ErrValidationFailed))
}

func intPtr(v int) *int { return &v }
