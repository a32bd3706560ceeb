package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/review"
)

const insertCutoff = `INSERT INTO cutoff_records
    (id, cycle_id, phase, track, criteria, overrides, decisions, forced, applied_by, applied_at, finalized, reverted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (t *tx) InsertCutoff(ctx context.Context, rec *review.CutoffRecord) error {
	criteria, err := marshalJSON("encode criteria", rec.Criteria)
	if err != nil {
		return err
	}
	overrides, err := marshalJSON("encode overrides", nonNilOverrides(rec.Overrides))
	if err != nil {
		return err
	}
	decisions, err := marshalJSON("encode decisions", nonNilDecisions(rec.Decisions))
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, insertCutoff,
		rec.ID, rec.CycleID, string(rec.Phase), rec.Track, criteria, overrides, decisions,
		rec.Forced, rec.AppliedBy, rec.AppliedAt, rec.Finalized, rec.RevertedAt)
	if err != nil {
		return storageError("insert cutoff", err)
	}
	return nil
}

const selectLatestCutoff = `SELECT id, track, criteria, overrides, decisions, forced, applied_by, applied_at, finalized, reverted_at
FROM cutoff_records
WHERE cycle_id = $1 AND phase = $2
ORDER BY applied_at DESC, id DESC
LIMIT 1`

func (t *tx) LatestCutoff(ctx context.Context, cycleID string, phase review.Phase) (*review.CutoffRecord, error) {
	var (
		rec                            = &review.CutoffRecord{CycleID: cycleID, Phase: phase}
		criteria, overrides, decisions []byte
		revertedAt                     sql.NullTime
	)
	err := t.tx.QueryRowContext(ctx, selectLatestCutoff, cycleID, string(phase)).Scan(
		&rec.ID, &rec.Track, &criteria, &overrides, &decisions,
		&rec.Forced, &rec.AppliedBy, &rec.AppliedAt, &rec.Finalized, &revertedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("latest cutoff", err)
	}
	if revertedAt.Valid {
		return nil, nil
	}

	if err := unmarshalJSON("decode criteria", criteria, &rec.Criteria); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("decode overrides", overrides, &rec.Overrides); err != nil {
		return nil, err
	}
	if err := unmarshalJSON("decode decisions", decisions, &rec.Decisions); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *tx) UpdateCutoff(ctx context.Context, rec *review.CutoffRecord) error {
	n, err := t.execAffecting(ctx, "update cutoff",
		"UPDATE cutoff_records SET finalized = $2, reverted_at = $3 WHERE id = $1",
		rec.ID, rec.Finalized, rec.RevertedAt)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NewStorageError("update cutoff", fmt.Errorf("cutoff %s not found", rec.ID))
	}
	return nil
}

func nonNilOverrides(in []review.Override) []review.Override {
	if in == nil {
		return []review.Override{}
	}
	return in
}

func nonNilDecisions(in []review.Decision) []review.Decision {
	if in == nil {
		return []review.Decision{}
	}
	return in
}
