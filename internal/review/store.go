package review

import (
	"context"
)

// LockMode is the row lock taken when reading a phase config inside a
// read-write transaction. Review writes take LockShared and lifecycle
// operations LockExclusive, so no review commits between a cutoff's ranking
// and its stage transitions.
type LockMode int

const (
	LockNone LockMode = iota
	LockShared
	LockExclusive
)

// ApplicationFilter selects applications. Empty fields match everything.
type ApplicationFilter struct {
	CycleID string
	Stages  []Stage
	Track   string
	IDs     []string
}

// ReviewFilter selects reviews. Empty fields match everything.
type ReviewFilter struct {
	CycleID       string
	Phase         Phase
	ApplicationID string
	ReviewerEmail string
}

// Store runs units of work against the review data.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Update runs fn in a read-write transaction. If fn returns an error,
	// nothing it wrote is kept.
	Update(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside a transaction.
type Tx interface {
	// GetPhaseConfig returns nil, nil when no config was saved.
	GetPhaseConfig(ctx context.Context, cycleID string, phase Phase, lock LockMode) (*PhaseConfig, error)
	// EnsurePhaseConfig inserts def unless a config already exists.
	EnsurePhaseConfig(ctx context.Context, def *PhaseConfig) (bool, error)
	// UpdatePhaseConfig writes cfg if the stored version still equals
	// expectedVersion, and sets cfg.Version to the new version.
	UpdatePhaseConfig(ctx context.Context, cfg *PhaseConfig, expectedVersion int64) error

	GetApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)
	// UpdateApplicationStage moves an application from one stage to another,
	// failing with a concurrent modification error if it is no longer in from.
	UpdateApplicationStage(ctx context.Context, id string, from, to Stage) error

	// UpsertReview replaces the review for its key, keeping the original
	// CreatedAt.
	UpsertReview(ctx context.Context, r *Review) error
	ListReviews(ctx context.Context, filter ReviewFilter) ([]Review, error)
	// ListCycleReviewers returns every reviewer with a review in the cycle.
	ListCycleReviewers(ctx context.Context, cycleID string) ([]string, error)
	// ReviewerNames resolves display names; unknown emails are omitted.
	ReviewerNames(ctx context.Context, emails []string) (map[string]string, error)

	InsertCutoff(ctx context.Context, rec *CutoffRecord) error
	// LatestCutoff returns the phase's most recent cutoff, or nil when there
	// is none or it has been reverted. Older cutoffs are superseded.
	LatestCutoff(ctx context.Context, cycleID string, phase Phase) (*CutoffRecord, error)
	UpdateCutoff(ctx context.Context, rec *CutoffRecord) error
}

// RankingKey identifies a cached ranking.
type RankingKey struct {
	CycleID string
	Phase   Phase
	Track   string
}

// RankingCache stores computed rankings until the phase's data changes.
//
// GetRanking returns the cached ranking, or nil together with the phase's
// current generation. A ranking built after that call is stored under the
// same generation, so if Invalidate ran in between the stale entry is never
// read back.
type RankingCache interface {
	GetRanking(ctx context.Context, key RankingKey) (*Ranking, int64, error)
	PutRanking(ctx context.Context, key RankingKey, generation int64, r *Ranking) error
	// Invalidate starts a new generation for the phase.
	Invalidate(ctx context.Context, cycleID string, phase Phase) error
}

// DecisionIndexer records cutoff records for audit search.
type DecisionIndexer interface {
	IndexCutoff(ctx context.Context, rec *CutoffRecord) error
}

// DecisionEvent is handed to the notifier after a cutoff commits.
type DecisionEvent struct {
	CutoffID  string     `json:"cutoffId"`
	CycleID   string     `json:"cycleId"`
	Phase     Phase      `json:"phase"`
	Finalized bool       `json:"finalized"`
	Decisions []Decision `json:"decisions"`
}

// Notifier delivers decision events. Implementations must not block the
// caller for long; the engine only logs their errors.
type Notifier interface {
	NotifyDecisions(ctx context.Context, event DecisionEvent) error
}
