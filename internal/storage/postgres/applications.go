package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/review"
)

const selectApplications = `SELECT id, cycle_id, track, stage, applicant_name, applicant_email, answers, files
FROM applications`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (review.Application, error) {
	var (
		app     review.Application
		stage   string
		answers []byte
		files   []string
	)
	if err := row.Scan(&app.ID, &app.CycleID, &app.Track, &stage, &app.ApplicantName, &app.ApplicantEmail,
		&answers, pq.Array(&files)); err != nil {
		return app, err
	}
	app.Stage = review.Stage(stage)
	app.Files = files
	if err := unmarshalJSON("decode answers", answers, &app.Answers); err != nil {
		return app, err
	}
	return app, nil
}

func (t *tx) GetApplication(ctx context.Context, id string) (*review.Application, error) {
	app, err := scanApplication(t.tx.QueryRowContext(ctx, selectApplications+" WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return nil, storageError("get application", err)
	}
	return &app, nil
}

func (t *tx) ListApplications(ctx context.Context, f review.ApplicationFilter) ([]review.Application, error) {
	w := &where{}
	if f.CycleID != "" {
		w.add("cycle_id = $%d", f.CycleID)
	}
	if len(f.Stages) > 0 {
		stages := make([]string, len(f.Stages))
		for i, s := range f.Stages {
			stages[i] = string(s)
		}
		w.add("stage = ANY($%d)", pq.Array(stages))
	}
	if f.Track != "" {
		w.add("track = $%d", f.Track)
	}
	if len(f.IDs) > 0 {
		w.add("id = ANY($%d)", pq.Array(f.IDs))
	}

	rows, err := t.tx.QueryContext(ctx, selectApplications+w.String()+" ORDER BY id", w.args...)
	if err != nil {
		return nil, storageError("list applications", err)
	}
	defer rows.Close()

	apps := []review.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, storageError("scan application", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list applications", err)
	}
	return apps, nil
}

const updateStage = `UPDATE applications SET stage = $3, updated_at = now() WHERE id = $1 AND stage = $2`

func (t *tx) UpdateApplicationStage(ctx context.Context, id string, from, to review.Stage) error {
	n, err := t.execAffecting(ctx, "update stage", updateStage, id, string(from), string(to))
	if err != nil {
		return apperrors.NewStageTransitionError(id, err)
	}
	if n == 1 {
		return nil
	}

	var current string
	err = t.tx.QueryRowContext(ctx, "SELECT stage FROM applications WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewApplicationNotFoundError(id)
	}
	if err != nil {
		return storageError("read stage", err)
	}
	return apperrors.NewConcurrentModificationError(
		fmt.Sprintf("application %s is in stage %s, expected %s", id, current, from))
}
