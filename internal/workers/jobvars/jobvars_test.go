package jobvars

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
)

func TestCutoffInput_Request(t *testing.T) {
	topN := 2
	off := false

	req := (&CutoffInput{CycleID: "c", Phase: review.PhaseApplication, TopN: &topN}).Request()
	assert.True(t, req.Notify)
	assert.Equal(t, &topN, req.Criteria.TopN)
	assert.Nil(t, req.Criteria.MinWeightedScore)

	req = (&CutoffInput{CycleID: "c", Phase: review.PhaseApplication, Notify: &off}).Request()
	assert.False(t, req.Notify)
}

func TestCutoffSchema(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		requireActor bool
		valid        bool
	}{
		{"preview without actor", `{"cycleId":"c","phase":"application","topN":2}`, false, true},
		{"apply without actor", `{"cycleId":"c","phase":"application","topN":2}`, true, false},
		{"apply with actor", `{"cycleId":"c","phase":"application","topN":2,"appliedBy":"lead@review.org"}`, true, true},
		{"negative topN", `{"cycleId":"c","phase":"application","topN":-1}`, false, false},
		{"bad override action", `{"cycleId":"c","phase":"application","overrides":[{"applicationId":"a","action":"hold"}]}`, false, false},
		{"null criteria", `{"cycleId":"c","phase":"application","topN":null,"minWeightedScore":3.5}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validation.ValidateJSON(tt.doc, CutoffSchema(tt.requireActor))
			assert.Equal(t, tt.valid, result.Valid, result.GetErrorMessages())
		})
	}
}

func TestPhaseScoped(t *testing.T) {
	assert.True(t, validation.ValidateJSON(`{"cycleId":"c","phase":"interview_round2"}`, PhaseScoped()).Valid)
	assert.False(t, validation.ValidateJSON(`{"cycleId":"c","phase":"reject"}`, PhaseScoped()).Valid)
}
