package postgres

import (
	"context"
	"strings"

	"github.com/lib/pq"

	"recruitment-review/internal/review"
)

const upsertReview = `INSERT INTO reviews
    (application_id, cycle_id, phase, reviewer_email, scores, notes, question_notes, referral_signal, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (application_id, phase, reviewer_email) DO UPDATE SET
    scores = EXCLUDED.scores,
    notes = EXCLUDED.notes,
    question_notes = EXCLUDED.question_notes,
    referral_signal = EXCLUDED.referral_signal,
    updated_at = EXCLUDED.updated_at
RETURNING created_at`

func (t *tx) UpsertReview(ctx context.Context, r *review.Review) error {
	scores, err := marshalJSON("encode scores", r.Scores)
	if err != nil {
		return err
	}
	// NULL rather than an empty document when there are no notes
	var notes interface{}
	if len(r.QuestionNotes) > 0 {
		b, err := marshalJSON("encode question notes", r.QuestionNotes)
		if err != nil {
			return err
		}
		notes = b
	}

	err = t.tx.QueryRowContext(ctx, upsertReview,
		r.ApplicationID, r.CycleID, string(r.Phase), r.ReviewerEmail, scores, r.Notes, notes,
		string(r.ReferralSignal), r.CreatedAt, r.UpdatedAt,
	).Scan(&r.CreatedAt)
	if err != nil {
		return storageError("upsert review", err)
	}
	return nil
}

const selectReviews = `SELECT application_id, cycle_id, phase, reviewer_email, scores, notes, question_notes,
    referral_signal, created_at, updated_at
FROM reviews`

func (t *tx) ListReviews(ctx context.Context, f review.ReviewFilter) ([]review.Review, error) {
	w := &where{}
	if f.CycleID != "" {
		w.add("cycle_id = $%d", f.CycleID)
	}
	if f.Phase != "" {
		w.add("phase = $%d", string(f.Phase))
	}
	if f.ApplicationID != "" {
		w.add("application_id = $%d", f.ApplicationID)
	}
	if f.ReviewerEmail != "" {
		w.add("reviewer_email = $%d", f.ReviewerEmail)
	}

	rows, err := t.tx.QueryContext(ctx, selectReviews+w.String()+" ORDER BY application_id, reviewer_email", w.args...)
	if err != nil {
		return nil, storageError("list reviews", err)
	}
	defer rows.Close()

	out := []review.Review{}
	for rows.Next() {
		var (
			r             review.Review
			phase, signal string
			scores, notes []byte
		)
		if err := rows.Scan(&r.ApplicationID, &r.CycleID, &phase, &r.ReviewerEmail, &scores, &r.Notes, &notes,
			&signal, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, storageError("scan review", err)
		}
		r.Phase = review.Phase(phase)
		r.ReferralSignal = review.ReferralSignal(signal)
		if err := unmarshalJSON("decode scores", scores, &r.Scores); err != nil {
			return nil, err
		}
		if err := unmarshalJSON("decode question notes", notes, &r.QuestionNotes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list reviews", err)
	}
	return out, nil
}

func (t *tx) ListCycleReviewers(ctx context.Context, cycleID string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT DISTINCT reviewer_email FROM reviews WHERE cycle_id = $1 ORDER BY reviewer_email", cycleID)
	if err != nil {
		return nil, storageError("list reviewers", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, storageError("scan reviewer", err)
		}
		out = append(out, email)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list reviewers", err)
	}
	return out, nil
}

// selectReviewerNames matches case-insensitively; keys come back lowercased
// like the emails stored on reviews.
const selectReviewerNames = `SELECT lower(email), name FROM reviewers WHERE lower(email) = ANY($1)`

func (t *tx) ReviewerNames(ctx context.Context, emails []string) (map[string]string, error) {
	names := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return names, nil
	}

	lowered := make([]string, len(emails))
	for i, email := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(email))
	}

	rows, err := t.tx.QueryContext(ctx, selectReviewerNames, pq.Array(lowered))
	if err != nil {
		return nil, storageError("reviewer names", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email, name string
		if err := rows.Scan(&email, &name); err != nil {
			return nil, storageError("scan reviewer name", err)
		}
		names[email] = name
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("reviewer names", err)
	}
	return names, nil
}
