package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservability_RecordAndShutdown(t *testing.T) {
	obs, err := New("recruitment-review-test")
	require.NoError(t, err)

	ctx, span := obs.StartSpan(context.Background(), "apply-cutoff")
	obs.RecordJobProcessed(ctx, "apply-cutoff", "success")
	obs.RecordJobDuration(ctx, "apply-cutoff", 25*time.Millisecond, "success")
	span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.NoError(t, obs.Shutdown(context.Background()))
}

func TestObservability_NilIsSafe(t *testing.T) {
	var obs *Observability

	obs.RecordJobProcessed(context.Background(), "build-ranking", "success")
	obs.RecordJobDuration(context.Background(), "build-ranking", time.Millisecond, "success")
	_, span := obs.StartSpan(context.Background(), "build-ranking")
	span.End()

	assert.NoError(t, obs.Shutdown(context.Background()))
}
