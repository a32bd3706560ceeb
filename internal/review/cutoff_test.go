package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id string, rank int, weighted *float64) RankingEntry {
	return RankingEntry{
		Rank:          rank,
		ApplicationID: id,
		Stage:         StageSubmitted,
		ScoreSummary:  ScoreSummary{WeightedScore: weighted},
	}
}

func TestNaturalAction(t *testing.T) {
	tests := []struct {
		name     string
		entry    RankingEntry
		criteria CutoffCriteria
		want     CutoffAction
	}{
		{"inside topN", entry("a", 2, floatPtr(3)), CutoffCriteria{TopN: intPtr(2)}, ActionAdvance},
		{"outside topN", entry("a", 3, floatPtr(3)), CutoffCriteria{TopN: intPtr(2)}, ActionReject},
		{"topN zero", entry("a", 1, floatPtr(5)), CutoffCriteria{TopN: intPtr(0)}, ActionReject},
		{"meets threshold", entry("a", 9, floatPtr(3.5)), CutoffCriteria{MinWeightedScore: floatPtr(3.5)}, ActionAdvance},
		{"below threshold", entry("a", 1, floatPtr(3.4)), CutoffCriteria{MinWeightedScore: floatPtr(3.5)}, ActionReject},
		{"both must hold", entry("a", 1, floatPtr(3.0)), CutoffCriteria{TopN: intPtr(5), MinWeightedScore: floatPtr(3.5)}, ActionReject},
		{"unscored never advances", entry("a", 1, nil), CutoffCriteria{TopN: intPtr(10)}, ActionReject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, naturalAction(tt.entry, tt.criteria))
		})
	}
}

func TestDecideCutoff_TargetStages(t *testing.T) {
	entries := []RankingEntry{entry("a", 1, floatPtr(4)), entry("b", 2, floatPtr(3))}

	decisions, err := decideCutoff(PhaseInterviewRound1, entries, CutoffCriteria{TopN: intPtr(1)}, nil)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, StageInterviewRound2, decisions[0].ToStage)
	assert.Equal(t, StageRejected, decisions[1].ToStage)
	assert.Equal(t, StageSubmitted, decisions[1].FromStage)
	assert.False(t, decisions[1].Overridden)
}

func TestDecideCutoff_RejectOverride(t *testing.T) {
	entries := []RankingEntry{entry("a", 1, floatPtr(4)), entry("b", 2, floatPtr(3))}

	decisions, err := decideCutoff(PhaseInterviewRound2, entries, CutoffCriteria{TopN: intPtr(2)},
		[]Override{{ApplicationID: "a", Action: ActionReject, Reason: "withdrew interest"}})
	require.NoError(t, err)

	assert.Equal(t, ActionAdvance, decisions[0].NaturalAction)
	assert.Equal(t, ActionReject, decisions[0].Action)
	assert.Equal(t, StageRejected, decisions[0].ToStage)
	assert.Equal(t, StageFinalReview, decisions[1].ToStage)
}

func TestToggleOverride(t *testing.T) {
	rejected := Decision{ApplicationID: "c", NaturalAction: ActionReject}
	advanced := Decision{ApplicationID: "a", NaturalAction: ActionAdvance}

	overrides := ToggleOverride(nil, rejected, "late bloomer")
	require.Len(t, overrides, 1)
	assert.Equal(t, Override{ApplicationID: "c", Action: ActionAdvance, Reason: "late bloomer"}, overrides[0])

	overrides = ToggleOverride(overrides, advanced, "")
	require.Len(t, overrides, 2)
	assert.Equal(t, ActionReject, overrides[1].Action)

	overrides = ToggleOverride(overrides, rejected, "")
	require.Len(t, overrides, 1)
	assert.Equal(t, "a", overrides[0].ApplicationID)
}
