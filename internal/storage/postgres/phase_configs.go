package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/review"
)

// settings is the JSONB document holding a config's editable fields.
type settings struct {
	Categories           []review.ScoringCategory   `json:"categories"`
	MinReviewersRequired int                        `json:"minReviewersRequired"`
	ReferralWeights      review.ReferralWeights     `json:"referralWeights"`
	InterviewQuestions   []review.InterviewQuestion `json:"interviewQuestions,omitempty"`
	Normalize            bool                       `json:"normalize"`
}

func settingsOf(cfg *review.PhaseConfig) settings {
	return settings{
		Categories:           cfg.Categories,
		MinReviewersRequired: cfg.MinReviewersRequired,
		ReferralWeights:      cfg.ReferralWeights,
		InterviewQuestions:   cfg.InterviewQuestions,
		Normalize:            cfg.Normalize,
	}
}

const selectPhaseConfig = `SELECT settings, status, cutoff_applied_at, version, updated_at
FROM phase_configs WHERE cycle_id = $1 AND phase = $2`

func lockClause(mode review.LockMode) string {
	switch mode {
	case review.LockShared:
		return " FOR SHARE"
	case review.LockExclusive:
		return " FOR UPDATE"
	}
	return ""
}

func (t *tx) GetPhaseConfig(ctx context.Context, cycleID string, phase review.Phase, lock review.LockMode) (*review.PhaseConfig, error) {
	var (
		raw       []byte
		status    string
		appliedAt sql.NullTime
	)
	cfg := &review.PhaseConfig{CycleID: cycleID, Phase: phase}

	err := t.tx.QueryRowContext(ctx, selectPhaseConfig+lockClause(lock), cycleID, string(phase)).
		Scan(&raw, &status, &appliedAt, &cfg.Version, &cfg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get phase config", err)
	}

	var s settings
	if err := unmarshalJSON("decode phase settings", raw, &s); err != nil {
		return nil, err
	}
	cfg.Categories = s.Categories
	cfg.MinReviewersRequired = s.MinReviewersRequired
	cfg.ReferralWeights = s.ReferralWeights
	cfg.InterviewQuestions = s.InterviewQuestions
	cfg.Normalize = s.Normalize
	cfg.Status = review.PhaseStatus(status)
	if appliedAt.Valid {
		at := appliedAt.Time
		cfg.CutoffAppliedAt = &at
	}
	return cfg, nil
}

const insertPhaseConfig = `INSERT INTO phase_configs (cycle_id, phase, settings, status, version, updated_at)
VALUES ($1, $2, $3, $4, 1, $5)
ON CONFLICT (cycle_id, phase) DO NOTHING`

func (t *tx) EnsurePhaseConfig(ctx context.Context, def *review.PhaseConfig) (bool, error) {
	raw, err := marshalJSON("encode phase settings", settingsOf(def))
	if err != nil {
		return false, err
	}
	updatedAt := def.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	n, err := t.execAffecting(ctx, "ensure phase config", insertPhaseConfig,
		def.CycleID, string(def.Phase), raw, string(def.Status), updatedAt)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const updatePhaseConfig = `UPDATE phase_configs
SET settings = $3, status = $4, cutoff_applied_at = $5, version = version + 1, updated_at = $6
WHERE cycle_id = $1 AND phase = $2 AND version = $7`

func (t *tx) UpdatePhaseConfig(ctx context.Context, cfg *review.PhaseConfig, expectedVersion int64) error {
	raw, err := marshalJSON("encode phase settings", settingsOf(cfg))
	if err != nil {
		return err
	}
	n, err := t.execAffecting(ctx, "update phase config", updatePhaseConfig,
		cfg.CycleID, string(cfg.Phase), raw, string(cfg.Status), cfg.CutoffAppliedAt, cfg.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewConcurrentModificationError(
			fmt.Sprintf("phase config %s/%s changed since version %d", cfg.CycleID, cfg.Phase, expectedVersion))
	}
	cfg.Version = expectedVersion + 1
	return nil
}
