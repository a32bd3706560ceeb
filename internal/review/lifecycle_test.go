package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recruitment-review/internal/common/errors"
)

// seedFourApplicants sets up four fully reviewed applicants ranked
// Ada 4.5, Bob 4.0, Cyd 3.5, Dan 3.0.
func seedFourApplicants(f *fixture) {
	f.addApp("a", "Ada", StageSubmitted)
	f.addApp("b", "Bob", StageUnderReview)
	f.addApp("c", "Cyd", StageSubmitted)
	f.addApp("d", "Dan", StageCoffeeChat)

	scores := map[string][2]int{"a": {5, 4}, "b": {4, 4}, "c": {4, 3}, "d": {3, 3}}
	for id, s := range scores {
		f.review(id, "r1@review.org", s[0], SignalNeutral)
		f.review(id, "r2@review.org", s[1], SignalNeutral)
	}
}

func decisionsByApp(rec *CutoffRecord) map[string]Decision {
	out := make(map[string]Decision, len(rec.Decisions))
	for _, d := range rec.Decisions {
		out[d.ApplicationID] = d
	}
	return out
}

// ==========================
// Cutoff
// ==========================

func TestApplyCutoff_TopNWithOverride(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	rec, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{
		CycleID:   testCycle,
		Phase:     PhaseApplication,
		Criteria:  CutoffCriteria{TopN: intPtr(2)},
		Overrides: []Override{{ApplicationID: "c", Action: ActionAdvance, Reason: "strong portfolio"}},
		AppliedBy: "lead@review.org",
	})
	require.NoError(t, err)

	assert.True(t, rec.Finalized)
	assert.False(t, rec.Forced)
	assert.Equal(t, "lead@review.org", rec.AppliedBy)
	advanced, rejected := rec.Counts()
	assert.Equal(t, 3, advanced)
	assert.Equal(t, 1, rejected)

	byApp := decisionsByApp(rec)
	assert.Equal(t, 1, byApp["a"].Rank)
	assert.Equal(t, ActionAdvance, byApp["b"].Action)
	assert.Equal(t, StageUnderReview, byApp["b"].FromStage)

	c := byApp["c"]
	assert.Equal(t, ActionReject, c.NaturalAction)
	assert.Equal(t, ActionAdvance, c.Action)
	assert.True(t, c.Overridden)
	assert.Equal(t, "strong portfolio", c.Reason)

	assert.Equal(t, StageInterviewRound1, f.stage("a"))
	assert.Equal(t, StageInterviewRound1, f.stage("b"))
	assert.Equal(t, StageInterviewRound1, f.stage("c"))
	assert.Equal(t, StageRejected, f.stage("d"))

	cfg, err := f.engine.GetConfig(f.ctx, testCycle, PhaseApplication, "")
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusFinalized, cfg.Status)
	require.NotNil(t, cfg.CutoffAppliedAt)
	assert.Equal(t, f.clock.Now(), *cfg.CutoffAppliedAt)
}

func TestApplyCutoff_MinWeightedScore(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)
	f.addApp("e", "Eve", StageSubmitted) // unreviewed

	rec, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{
		CycleID:       testCycle,
		Phase:         PhaseApplication,
		Criteria:      CutoffCriteria{MinWeightedScore: floatPtr(4.0)},
		ForceFinalize: true,
	})
	require.NoError(t, err)

	byApp := decisionsByApp(rec)
	assert.Equal(t, ActionAdvance, byApp["a"].Action)
	assert.Equal(t, ActionAdvance, byApp["b"].Action)
	assert.Equal(t, ActionReject, byApp["c"].Action)
	assert.Equal(t, ActionReject, byApp["e"].Action)
	assert.Nil(t, byApp["e"].WeightedScore)
	assert.True(t, rec.Forced)
}

func TestApplyCutoff_IncompleteReviewsBlock(t *testing.T) {
	f := newFixture(t)
	f.addApp("a", "Ada", StageSubmitted)
	f.addApp("b", "Bob", StageSubmitted)
	f.review("a", "r1@review.org", 4, SignalNeutral)
	f.review("b", "r1@review.org", 4, SignalNeutral)
	f.review("a", "r2@review.org", 4, SignalNeutral)

	req := CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)}}

	_, err := f.engine.ApplyCutoff(f.ctx, req)
	assertCode(t, err, apperrors.ErrCodeIncompleteReviews)
	var stdErr *apperrors.StandardError
	require.True(t, errors.As(err, &stdErr))
	assert.Equal(t, []string{"r2@review.org"}, stdErr.Metadata["incompleteReviewers"])
	assert.Equal(t, StageSubmitted, f.stage("a"))

	preview, err := f.engine.PreviewCutoff(f.ctx, req)
	require.NoError(t, err)
	assert.True(t, preview.Blocked)

	req.ForceFinalize = true
	rec, err := f.engine.ApplyCutoff(f.ctx, req)
	require.NoError(t, err)
	assert.True(t, rec.Forced)
	assert.Equal(t, StageInterviewRound1, f.stage("a"))
	assert.Equal(t, StageRejected, f.stage("b"))
}

func TestApplyCutoff_RequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CutoffRequest
	}{
		{"no criteria", CutoffRequest{CycleID: testCycle, Phase: PhaseApplication}},
		{"negative topN", CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(-1)}}},
		{"unknown phase", CutoffRequest{CycleID: testCycle, Phase: "final", Criteria: CutoffCriteria{TopN: intPtr(1)}}},
		{"missing cycle", CutoffRequest{Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)}}},
		{"override for stranger", CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)},
			Overrides: []Override{{ApplicationID: "zzz", Action: ActionAdvance}}}},
		{"duplicate override", CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)},
			Overrides: []Override{{ApplicationID: "a", Action: ActionAdvance}, {ApplicationID: "a", Action: ActionReject}}}},
		{"unknown override action", CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)},
			Overrides: []Override{{ApplicationID: "a", Action: "waitlist"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			seedFourApplicants(f)

			_, err := f.engine.ApplyCutoff(f.ctx, tt.req)
			assertCode(t, err, apperrors.ErrCodeValidationFailed)
			assert.Equal(t, StageSubmitted, f.stage("a"))
		})
	}
}

func TestPreviewCutoff_WritesNothing(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	req := CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}}
	preview, err := f.engine.PreviewCutoff(f.ctx, req)
	require.NoError(t, err)

	assert.False(t, preview.Blocked)
	assert.Equal(t, 2, preview.Advancing)
	assert.Equal(t, 2, preview.Rejecting)
	assert.Equal(t, PhaseStatusOpen, preview.Status)
	assert.Equal(t, StageSubmitted, f.stage("a"))

	// toggling the third-ranked applicant flips it to advance
	var third Decision
	for _, d := range preview.Decisions {
		if d.Rank == 3 {
			third = d
		}
	}
	req.Overrides = ToggleOverride(nil, third, "")
	preview, err = f.engine.PreviewCutoff(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.Advancing)
	assert.Len(t, preview.Overrides, 1)
}

type failingStore struct {
	Store
	failOn string
}

func (s *failingStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.Store.Update(ctx, func(tx Tx) error {
		return fn(&failingTx{Tx: tx, failOn: s.failOn})
	})
}

type failingTx struct {
	Tx
	failOn string
}

func (t *failingTx) UpdateApplicationStage(ctx context.Context, id string, from, to Stage) error {
	if id == t.failOn {
		return apperrors.NewStageTransitionError(id, errors.New("connection reset"))
	}
	return t.Tx.UpdateApplicationStage(ctx, id, from, to)
}

func TestApplyCutoff_AllOrNothing(t *testing.T) {
	mem := NewMemoryStore()
	f := newFixtureWithStore(t, mem, &failingStore{Store: mem, failOn: "c"})
	seedFourApplicants(f)

	_, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{
		CycleID:  testCycle,
		Phase:    PhaseApplication,
		Criteria: CutoffCriteria{TopN: intPtr(2)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStageTransitionFailed))

	assert.Equal(t, StageSubmitted, f.stage("a"))
	assert.Equal(t, StageUnderReview, f.stage("b"))
	assert.Equal(t, StageSubmitted, f.stage("c"))
	assert.Equal(t, StageCoffeeChat, f.stage("d"))

	cfg, err := f.engine.GetConfig(f.ctx, testCycle, PhaseApplication, "")
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusOpen, cfg.Status)
	assert.Nil(t, cfg.CutoffAppliedAt)

	_, err = f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodeNothingToRevert)
}

func TestApplyCutoff_ConcurrentCallsFinalizeOnce(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	req := CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ApplyCutoff(f.ctx, req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, apperrors.ErrPhaseLocked), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, StageRejected, f.stage("d"))
}

// ==========================
// Lock / unlock / finalize
// ==========================

func TestFinalizedPhaseRejectsWrites(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}})
	require.NoError(t, err)

	_, err = f.engine.UpsertReview(f.ctx, UpsertReviewRequest{
		ApplicationID: "d",
		Phase:         PhaseApplication,
		ReviewerEmail: "r1@review.org",
		Scores:        map[string]int{"overall": 5},
	})
	assertCode(t, err, apperrors.ErrCodePhaseLocked)

	_, err = f.engine.SaveConfig(f.ctx, SaveConfigRequest{
		CycleID:              testCycle,
		Phase:                PhaseApplication,
		Categories:           []ScoringCategory{{Key: "overall", Weight: 1}},
		MinReviewersRequired: 1,
	})
	assertCode(t, err, apperrors.ErrCodePhaseLocked)

	_, err = f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)}})
	assertCode(t, err, apperrors.ErrCodePhaseLocked)

	// the next phase is unaffected
	_, err = f.engine.UpsertReview(f.ctx, UpsertReviewRequest{
		ApplicationID: "a",
		Phase:         PhaseInterviewRound1,
		ReviewerEmail: "r1@review.org",
		Scores:        map[string]int{"overall": 4},
	})
	require.NoError(t, err)
}

func TestUnlockPhase(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.UnlockPhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodePhaseNotFinalized)

	_, err = f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}})
	require.NoError(t, err)

	cfg, err := f.engine.UnlockPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusOpen, cfg.Status)
	assert.NotNil(t, cfg.CutoffAppliedAt, "unlock keeps the cutoff timestamp")
	assert.Equal(t, StageRejected, f.stage("d"), "unlock does not touch stages")

	_, err = f.engine.UpsertReview(f.ctx, UpsertReviewRequest{
		ApplicationID: "d",
		Phase:         PhaseApplication,
		ReviewerEmail: "r1@review.org",
		Scores:        map[string]int{"overall": 5},
	})
	require.NoError(t, err)

	_, err = f.engine.UnlockPhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodePhaseNotFinalized)
}

func TestFinalizePhase_RelockKeepsCutoffTime(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}})
	require.NoError(t, err)
	appliedAt := f.clock.Now()

	_, err = f.engine.UnlockPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	cfg, err := f.engine.FinalizePhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusFinalized, cfg.Status)
	require.NotNil(t, cfg.CutoffAppliedAt)
	assert.Equal(t, appliedAt, *cfg.CutoffAppliedAt)
	assert.Equal(t, f.clock.Now(), cfg.UpdatedAt)
}

func TestDeferredFinalize(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.FinalizePhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodeValidationFailed)

	rec, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{
		CycleID:       testCycle,
		Phase:         PhaseApplication,
		Criteria:      CutoffCriteria{TopN: intPtr(2)},
		DeferFinalize: true,
	})
	require.NoError(t, err)
	assert.False(t, rec.Finalized)
	assert.Equal(t, StageInterviewRound1, f.stage("a"))

	cfg, err := f.engine.GetConfig(f.ctx, testCycle, PhaseApplication, "")
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusOpen, cfg.Status)
	assert.Nil(t, cfg.CutoffAppliedAt)

	cfg, err = f.engine.FinalizePhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	assert.Equal(t, PhaseStatusFinalized, cfg.Status)
	assert.NotNil(t, cfg.CutoffAppliedAt)

	_, err = f.engine.FinalizePhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodePhaseLocked)
}

// ==========================
// Revert
// ==========================

func TestRevertPhase_RestoresStages(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)
	f.addApp("e", "Eve", StageUnderReview)
	f.review("e", "r1@review.org", 2, SignalNeutral)
	f.review("e", "r2@review.org", 2, SignalNeutral)

	before := map[string]Stage{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		before[id] = f.stage(id)
	}

	rec, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(3)}})
	require.NoError(t, err)
	assert.Equal(t, StageRejected, f.stage("e"))

	res, err := f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, res.CutoffID)
	assert.Len(t, res.Restored, 5)
	assert.Empty(t, res.Skipped)

	for id, stage := range before {
		assert.Equal(t, stage, f.stage(id), "stage of %s", id)
	}
	assert.Equal(t, PhaseStatusOpen, res.Config.Status)
	assert.Nil(t, res.Config.CutoffAppliedAt)

	_, err = f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	assertCode(t, err, apperrors.ErrCodeNothingToRevert)

	// reviews survive and the phase can be cut again
	again, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(1)}})
	require.NoError(t, err)
	advanced, _ := again.Counts()
	assert.Equal(t, 1, advanced)
}

func TestRevertPhase_SkipsApplicantsMovedSince(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}})
	require.NoError(t, err)

	moved, _ := f.store.Application("a")
	moved.Stage = StageInterviewRound2
	f.store.PutApplication(moved)

	res, err := f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "a", res.Skipped[0].ApplicationID)
	assert.Equal(t, StageInterviewRound2, res.Skipped[0].CurrentStage)
	assert.Len(t, res.Restored, 3)

	assert.Equal(t, StageInterviewRound2, f.stage("a"))
	assert.Equal(t, StageUnderReview, f.stage("b"))
	assert.Equal(t, StageCoffeeChat, f.stage("d"))
}

func TestRevertPhase_AfterUnlock(t *testing.T) {
	f := newFixture(t)
	seedFourApplicants(f)

	_, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{CycleID: testCycle, Phase: PhaseApplication, Criteria: CutoffCriteria{TopN: intPtr(2)}})
	require.NoError(t, err)
	_, err = f.engine.UnlockPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)

	res, err := f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	assert.Len(t, res.Restored, 4)
	assert.Nil(t, res.Config.CutoffAppliedAt)
}

// ==========================
// Side effects
// ==========================

type recordingIndexer struct {
	mu      sync.Mutex
	records []*CutoffRecord
}

func (r *recordingIndexer) IndexCutoff(_ context.Context, rec *CutoffRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []DecisionEvent
	err    error
}

func (r *recordingNotifier) NotifyDecisions(_ context.Context, event DecisionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestApplyCutoff_IndexesAndNotifies(t *testing.T) {
	indexer := &recordingIndexer{}
	notifier := &recordingNotifier{err: errors.New("broker unavailable")}
	cache := newFakeCache()
	f := newFixture(t, WithDecisionIndexer(indexer), WithNotifier(notifier), WithRankingCache(cache))
	seedFourApplicants(f)

	rec, err := f.engine.ApplyCutoff(f.ctx, CutoffRequest{
		CycleID:  testCycle,
		Phase:    PhaseApplication,
		Criteria: CutoffCriteria{TopN: intPtr(2)},
		Notify:   true,
	})
	require.NoError(t, err, "notification failures do not fail the cutoff")

	require.Len(t, notifier.events, 1)
	event := notifier.events[0]
	assert.Equal(t, rec.ID, event.CutoffID)
	assert.True(t, event.Finalized)
	assert.Len(t, event.Decisions, 4)

	require.Len(t, indexer.records, 1)
	assert.Equal(t, rec.ID, indexer.records[0].ID)
	assert.Subset(t, cache.invalidated, Phases)

	_, err = f.engine.RevertPhase(f.ctx, testCycle, PhaseApplication)
	require.NoError(t, err)
	require.Len(t, indexer.records, 2)
	assert.NotNil(t, indexer.records[1].RevertedAt)
	assert.Len(t, notifier.events, 1)
}
