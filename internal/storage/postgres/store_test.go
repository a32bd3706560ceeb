package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, logger.NewTestLogger(t)), mock
}

func q(s string) string {
	return regexp.QuoteMeta(s)
}

var fixedTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// ==========================
// Transactions
// ==========================

func TestStore_UpdateCommits(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(updateStage)).
		WithArgs("app-1", "submitted", "interview_round1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		return tx.UpdateApplicationStage(context.Background(), "app-1", review.StageSubmitted, review.StageInterviewRound1)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateRollsBackOnError(t *testing.T) {
	store, mock := newTestStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx review.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_BeginFailure(t *testing.T) {
	store, mock := newTestStore(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := store.View(context.Background(), func(tx review.Tx) error { return nil })
	assert.True(t, errors.Is(err, apperrors.ErrStorageFailed))
}

func TestStorageError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"serialization failure", &pq.Error{Code: "40001", Message: "could not serialize access"}, apperrors.ErrCodeConcurrentModification},
		{"deadlock", &pq.Error{Code: "40P01", Message: "deadlock detected"}, apperrors.ErrCodeConcurrentModification},
		{"statement timeout", &pq.Error{Code: "57014", Message: "canceling statement"}, apperrors.ErrCodeStorageTimeout},
		{"context deadline", context.DeadlineExceeded, apperrors.ErrCodeStorageTimeout},
		{"other", errors.New("connection refused"), apperrors.ErrCodeStorageFailed},
		{"already coded", apperrors.NewApplicationNotFoundError("x"), apperrors.ErrCodeApplicationNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, apperrors.AsStandardError(storageError("op", tt.err)).Code)
		})
	}
}

// ==========================
// Phase configs
// ==========================

func TestTx_GetPhaseConfigLocksRow(t *testing.T) {
	store, mock := newTestStore(t)

	settingsJSON := []byte(`{"categories":[{"key":"overall","label":"Overall","weight":2,"mandatory":true}],` +
		`"minReviewersRequired":3,"referralWeights":{"advocate":1,"oppose":-1},"normalize":true}`)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectPhaseConfig + " FOR UPDATE")).
		WithArgs("cycle-1", "application").
		WillReturnRows(sqlmock.NewRows([]string{"settings", "status", "cutoff_applied_at", "version", "updated_at"}).
			AddRow(settingsJSON, "finalized", fixedTime, int64(4), fixedTime))
	mock.ExpectCommit()

	var cfg *review.PhaseConfig
	err := store.Update(context.Background(), func(tx review.Tx) error {
		var err error
		cfg, err = tx.GetPhaseConfig(context.Background(), "cycle-1", review.PhaseApplication, review.LockExclusive)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, review.PhaseStatusFinalized, cfg.Status)
	assert.Equal(t, int64(4), cfg.Version)
	assert.Equal(t, 3, cfg.MinReviewersRequired)
	assert.True(t, cfg.Normalize)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, 2.0, cfg.Categories[0].Weight)
	require.NotNil(t, cfg.CutoffAppliedAt)
	assert.True(t, fixedTime.Equal(*cfg.CutoffAppliedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_GetPhaseConfigMissing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectPhaseConfig + " FOR SHARE")).
		WithArgs("cycle-1", "interview_round1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		cfg, err := tx.GetPhaseConfig(context.Background(), "cycle-1", review.PhaseInterviewRound1, review.LockShared)
		assert.Nil(t, cfg)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_EnsurePhaseConfig(t *testing.T) {
	store, mock := newTestStore(t)
	def := &review.PhaseConfig{
		CycleID:              "cycle-1",
		Phase:                review.PhaseApplication,
		Categories:           []review.ScoringCategory{{Key: "overall", Weight: 1, Mandatory: true}},
		MinReviewersRequired: 2,
		Status:               review.PhaseStatusOpen,
		UpdatedAt:            fixedTime,
	}

	mock.ExpectBegin()
	mock.ExpectExec(q(insertPhaseConfig)).
		WithArgs("cycle-1", "application", sqlmock.AnyArg(), "open", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q(insertPhaseConfig)).
		WithArgs("cycle-1", "application", sqlmock.AnyArg(), "open", fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		created, err := tx.EnsurePhaseConfig(context.Background(), def)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = tx.EnsurePhaseConfig(context.Background(), def)
		require.NoError(t, err)
		assert.False(t, created)
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_UpdatePhaseConfigVersionConflict(t *testing.T) {
	store, mock := newTestStore(t)
	cfg := &review.PhaseConfig{
		CycleID:   "cycle-1",
		Phase:     review.PhaseApplication,
		Status:    review.PhaseStatusFinalized,
		Version:   2,
		UpdatedAt: fixedTime,
	}

	mock.ExpectBegin()
	mock.ExpectExec(q(updatePhaseConfig)).
		WithArgs("cycle-1", "application", sqlmock.AnyArg(), "finalized", sqlmock.AnyArg(), fixedTime, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		return tx.UpdatePhaseConfig(context.Background(), cfg, 2)
	})
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentModification))
	assert.Equal(t, int64(2), cfg.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Applications
// ==========================

func TestTx_ListApplicationsFilters(t *testing.T) {
	store, mock := newTestStore(t)

	expected := selectApplications + " WHERE cycle_id = $1 AND stage = ANY($2) AND track = $3 ORDER BY id"
	mock.ExpectBegin()
	mock.ExpectQuery(q(expected)).
		WithArgs("cycle-1", pq.Array([]string{"submitted", "under_review"}), "engineering").
		WillReturnRows(sqlmock.NewRows([]string{"id", "cycle_id", "track", "stage", "applicant_name", "applicant_email", "answers", "files"}).
			AddRow("app-1", "cycle-1", "engineering", "submitted", "Ada", "ada@applicants.org", []byte(`{"why":"impact"}`), []byte("{cv.pdf,essay.pdf}")).
			AddRow("app-2", "cycle-1", "engineering", "under_review", "Bob", "bob@applicants.org", nil, nil))
	mock.ExpectCommit()

	var apps []review.Application
	err := store.View(context.Background(), func(tx review.Tx) error {
		var err error
		apps, err = tx.ListApplications(context.Background(), review.ApplicationFilter{
			CycleID: "cycle-1",
			Stages:  []review.Stage{review.StageSubmitted, review.StageUnderReview},
			Track:   "engineering",
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, apps, 2)

	assert.Equal(t, review.StageSubmitted, apps[0].Stage)
	assert.Equal(t, map[string]string{"why": "impact"}, apps[0].Answers)
	assert.Equal(t, []string{"cv.pdf", "essay.pdf"}, apps[0].Files)
	assert.Nil(t, apps[1].Answers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_GetApplicationNotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectApplications + " WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.View(context.Background(), func(tx review.Tx) error {
		_, err := tx.GetApplication(context.Background(), "missing")
		return err
	})
	assert.True(t, errors.Is(err, apperrors.ErrApplicationNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_UpdateApplicationStageConflict(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(q(updateStage)).
		WithArgs("app-1", "submitted", "rejected").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(q("SELECT stage FROM applications WHERE id = $1")).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"stage"}).AddRow("withdrawn"))
	mock.ExpectRollback()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		return tx.UpdateApplicationStage(context.Background(), "app-1", review.StageSubmitted, review.StageRejected)
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentModification))
	assert.Contains(t, err.Error(), "withdrawn")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Reviews
// ==========================

func TestTx_UpsertReviewKeepsCreatedAt(t *testing.T) {
	store, mock := newTestStore(t)
	original := fixedTime.Add(-48 * time.Hour)
	r := &review.Review{
		ApplicationID:  "app-1",
		CycleID:        "cycle-1",
		Phase:          review.PhaseApplication,
		ReviewerEmail:  "r1@review.org",
		Scores:         map[string]int{"overall": 4},
		ReferralSignal: review.SignalReferral,
		CreatedAt:      fixedTime,
		UpdatedAt:      fixedTime,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(q(upsertReview)).
		WithArgs("app-1", "cycle-1", "application", "r1@review.org", []byte(`{"overall":4}`), "", nil,
			"referral", fixedTime, fixedTime).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(original))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		return tx.UpsertReview(context.Background(), r)
	})
	require.NoError(t, err)
	assert.True(t, original.Equal(r.CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ListReviews(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectReviews + " WHERE cycle_id = $1 AND phase = $2 ORDER BY application_id, reviewer_email")).
		WithArgs("cycle-1", "interview_round1").
		WillReturnRows(sqlmock.NewRows([]string{"application_id", "cycle_id", "phase", "reviewer_email", "scores", "notes",
			"question_notes", "referral_signal", "created_at", "updated_at"}).
			AddRow("app-1", "cycle-1", "interview_round1", "r1@review.org", []byte(`{"overall":5}`), "great",
				[]byte(`{"q1":"clear answer"}`), "neutral", fixedTime, fixedTime))
	mock.ExpectCommit()

	var reviews []review.Review
	err := store.View(context.Background(), func(tx review.Tx) error {
		var err error
		reviews, err = tx.ListReviews(context.Background(), review.ReviewFilter{CycleID: "cycle-1", Phase: review.PhaseInterviewRound1})
		return err
	})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, map[string]int{"overall": 5}, reviews[0].Scores)
	assert.Equal(t, map[string]string{"q1": "clear answer"}, reviews[0].QuestionNotes)
	assert.Equal(t, review.SignalNeutral, reviews[0].ReferralSignal)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ReviewerNamesSkipsEmptyLookup(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.View(context.Background(), func(tx review.Tx) error {
		names, err := tx.ReviewerNames(context.Background(), nil)
		assert.Empty(t, names)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_ReviewerNamesMatchesCaseInsensitively(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectReviewerNames)).
		WithArgs(pq.Array([]string{"r1@review.org", "r2@review.org"})).
		WillReturnRows(sqlmock.NewRows([]string{"lower", "name"}).
			AddRow("r1@review.org", "Grace Hopper"))
	mock.ExpectCommit()

	var names map[string]string
	err := store.View(context.Background(), func(tx review.Tx) error {
		var err error
		names, err = tx.ReviewerNames(context.Background(), []string{"R1@Review.org", " r2@review.org"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"r1@review.org": "Grace Hopper"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Cutoffs
// ==========================

var cutoffColumns = []string{"id", "track", "criteria", "overrides", "decisions", "forced", "applied_by", "applied_at", "finalized", "reverted_at"}

func TestTx_LatestCutoff(t *testing.T) {
	store, mock := newTestStore(t)

	decisions := []byte(`[{"applicationId":"app-1","action":"advance","naturalAction":"advance","fromStage":"submitted","toStage":"interview_round1","rank":1}]`)
	mock.ExpectBegin()
	mock.ExpectQuery(q(selectLatestCutoff)).
		WithArgs("cycle-1", "application").
		WillReturnRows(sqlmock.NewRows(cutoffColumns).
			AddRow("cut-1", "", []byte(`{"topN":1}`), []byte(`[]`), decisions, false, "lead@review.org", fixedTime, true, nil))
	mock.ExpectCommit()

	var rec *review.CutoffRecord
	err := store.View(context.Background(), func(tx review.Tx) error {
		var err error
		rec, err = tx.LatestCutoff(context.Background(), "cycle-1", review.PhaseApplication)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cut-1", rec.ID)
	require.NotNil(t, rec.Criteria.TopN)
	assert.Equal(t, 1, *rec.Criteria.TopN)
	require.Len(t, rec.Decisions, 1)
	assert.Equal(t, review.StageInterviewRound1, rec.Decisions[0].ToStage)
	assert.True(t, rec.Finalized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_LatestCutoffRevertedIsNothing(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q(selectLatestCutoff)).
		WithArgs("cycle-1", "application").
		WillReturnRows(sqlmock.NewRows(cutoffColumns).
			AddRow("cut-2", "", []byte(`{"topN":1}`), []byte(`[]`), []byte(`[]`), false, "", fixedTime, false, fixedTime))
	mock.ExpectCommit()

	err := store.View(context.Background(), func(tx review.Tx) error {
		rec, err := tx.LatestCutoff(context.Background(), "cycle-1", review.PhaseApplication)
		assert.Nil(t, rec)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTx_InsertAndUpdateCutoff(t *testing.T) {
	store, mock := newTestStore(t)
	topN := 2
	rec := &review.CutoffRecord{
		ID:        "cut-1",
		CycleID:   "cycle-1",
		Phase:     review.PhaseApplication,
		Criteria:  review.CutoffCriteria{TopN: &topN},
		AppliedAt: fixedTime,
		Finalized: true,
	}

	mock.ExpectBegin()
	mock.ExpectExec(q(insertCutoff)).
		WithArgs("cut-1", "cycle-1", "application", "", []byte(`{"topN":2}`), []byte(`[]`), []byte(`[]`),
			false, "", fixedTime, true, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("UPDATE cutoff_records SET finalized = $2, reverted_at = $3 WHERE id = $1")).
		WithArgs("cut-1", true, fixedTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), func(tx review.Tx) error {
		if err := tx.InsertCutoff(context.Background(), rec); err != nil {
			return err
		}
		reverted := fixedTime
		rec.RevertedAt = &reverted
		return tx.UpdateCutoff(context.Background(), rec)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
