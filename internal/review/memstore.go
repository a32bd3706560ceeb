package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	apperrors "recruitment-review/internal/common/errors"
)

var _ Store = (*MemoryStore)(nil)

var errReadOnly = errors.New("write attempted in read-only transaction")

type reviewKey struct {
	applicationID string
	phase         Phase
	reviewer      string
}

type memoryState struct {
	configs      map[string]*PhaseConfig
	applications map[string]*Application
	reviews      map[reviewKey]*Review
	cutoffs      []*CutoffRecord
	reviewers    map[string]string
}

func newMemoryState() memoryState {
	return memoryState{
		configs:      make(map[string]*PhaseConfig),
		applications: make(map[string]*Application),
		reviews:      make(map[reviewKey]*Review),
		reviewers:    make(map[string]string),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.configs {
		out.configs[k] = v.clone()
	}
	for k, v := range s.applications {
		a := *v
		out.applications[k] = &a
	}
	for k, v := range s.reviews {
		out.reviews[k] = cloneReview(v)
	}
	out.cutoffs = make([]*CutoffRecord, len(s.cutoffs))
	for i, c := range s.cutoffs {
		out.cutoffs[i] = c.clone()
	}
	for k, v := range s.reviewers {
		out.reviewers[k] = v
	}
	return out
}

// MemoryStore keeps everything in process. Update works on a copy of the
// state and swaps it in only when the transaction function succeeds, so a
// failed unit of work leaves nothing behind.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryTx{state: &s.state, readOnly: true})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	working := s.state.clone()
	if err := fn(&memoryTx{state: &working}); err != nil {
		return err
	}
	s.state = working
	return nil
}

// PutApplication inserts or replaces an application record.
func (s *MemoryStore) PutApplication(app Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := app
	s.state.applications[a.ID] = &a
}

// PutReviewer registers a reviewer display name.
func (s *MemoryStore) PutReviewer(email, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.reviewers[strings.ToLower(email)] = name
}

// Seed is the JSON document accepted by LoadSeed.
type Seed struct {
	Applications []Application `json:"applications"`
	Reviewers    []struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"reviewers"`
}

// LoadSeed reads applications and reviewers from a JSON document.
func (s *MemoryStore) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, app := range seed.Applications {
		if app.ID == "" || !app.Stage.Valid() {
			return fmt.Errorf("seed application %q: missing id or invalid stage %q", app.ID, app.Stage)
		}
		s.PutApplication(app)
	}
	for _, rv := range seed.Reviewers {
		s.PutReviewer(rv.Email, rv.Name)
	}
	return nil
}

// Application returns a copy of the stored application.
func (s *MemoryStore) Application(id string) (Application, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.applications[id]
	if !ok {
		return Application{}, false
	}
	return *a, true
}

type memoryTx struct {
	state    *memoryState
	readOnly bool
}

func configKey(cycleID string, phase Phase) string {
	return cycleID + "|" + string(phase)
}

func (t *memoryTx) writable() error {
	if t.readOnly {
		return apperrors.NewStorageError("memory", errReadOnly)
	}
	return nil
}

func (t *memoryTx) GetPhaseConfig(_ context.Context, cycleID string, phase Phase, _ LockMode) (*PhaseConfig, error) {
	cfg, ok := t.state.configs[configKey(cycleID, phase)]
	if !ok {
		return nil, nil
	}
	return cfg.clone(), nil
}

func (t *memoryTx) EnsurePhaseConfig(_ context.Context, def *PhaseConfig) (bool, error) {
	key := configKey(def.CycleID, def.Phase)
	if _, ok := t.state.configs[key]; ok {
		return false, nil
	}
	if err := t.writable(); err != nil {
		return false, err
	}
	cfg := def.clone()
	cfg.Version = 1
	t.state.configs[key] = cfg
	return true, nil
}

func (t *memoryTx) UpdatePhaseConfig(_ context.Context, cfg *PhaseConfig, expectedVersion int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := configKey(cfg.CycleID, cfg.Phase)
	current, ok := t.state.configs[key]
	if !ok || current.Version != expectedVersion {
		return apperrors.NewConcurrentModificationError(
			fmt.Sprintf("phase config %s changed since version %d", key, expectedVersion))
	}
	cfg.Version = expectedVersion + 1
	t.state.configs[key] = cfg.clone()
	return nil
}

func (t *memoryTx) GetApplication(_ context.Context, id string) (*Application, error) {
	a, ok := t.state.applications[id]
	if !ok {
		return nil, apperrors.NewApplicationNotFoundError(id)
	}
	out := *a
	return &out, nil
}

func (t *memoryTx) ListApplications(_ context.Context, f ApplicationFilter) ([]Application, error) {
	stages := make(map[Stage]bool, len(f.Stages))
	for _, st := range f.Stages {
		stages[st] = true
	}
	ids := make(map[string]bool, len(f.IDs))
	for _, id := range f.IDs {
		ids[id] = true
	}

	out := []Application{}
	for _, a := range t.state.applications {
		switch {
		case f.CycleID != "" && a.CycleID != f.CycleID:
			continue
		case f.Track != "" && a.Track != f.Track:
			continue
		case len(stages) > 0 && !stages[a.Stage]:
			continue
		case len(ids) > 0 && !ids[a.ID]:
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) UpdateApplicationStage(_ context.Context, id string, from, to Stage) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.state.applications[id]
	if !ok {
		return apperrors.NewApplicationNotFoundError(id)
	}
	if a.Stage != from {
		return apperrors.NewConcurrentModificationError(
			fmt.Sprintf("application %s is in stage %s, expected %s", id, a.Stage, from))
	}
	a.Stage = to
	return nil
}

func (t *memoryTx) UpsertReview(_ context.Context, r *Review) error {
	if err := t.writable(); err != nil {
		return err
	}
	key := reviewKey{applicationID: r.ApplicationID, phase: r.Phase, reviewer: r.ReviewerEmail}
	if prev, ok := t.state.reviews[key]; ok {
		r.CreatedAt = prev.CreatedAt
	}
	t.state.reviews[key] = cloneReview(r)
	return nil
}

func (t *memoryTx) ListReviews(_ context.Context, f ReviewFilter) ([]Review, error) {
	out := []Review{}
	for _, r := range t.state.reviews {
		switch {
		case f.CycleID != "" && r.CycleID != f.CycleID:
			continue
		case f.Phase != "" && r.Phase != f.Phase:
			continue
		case f.ApplicationID != "" && r.ApplicationID != f.ApplicationID:
			continue
		case f.ReviewerEmail != "" && r.ReviewerEmail != f.ReviewerEmail:
			continue
		}
		out = append(out, *cloneReview(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ApplicationID != out[j].ApplicationID {
			return out[i].ApplicationID < out[j].ApplicationID
		}
		return out[i].ReviewerEmail < out[j].ReviewerEmail
	})
	return out, nil
}

func (t *memoryTx) ListCycleReviewers(_ context.Context, cycleID string) ([]string, error) {
	seen := make(map[string]bool)
	out := []string{}
	for _, r := range t.state.reviews {
		if r.CycleID == cycleID && !seen[r.ReviewerEmail] {
			seen[r.ReviewerEmail] = true
			out = append(out, r.ReviewerEmail)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *memoryTx) ReviewerNames(_ context.Context, emails []string) (map[string]string, error) {
	out := make(map[string]string, len(emails))
	for _, e := range emails {
		key := strings.ToLower(strings.TrimSpace(e))
		if n, ok := t.state.reviewers[key]; ok {
			out[key] = n
		}
	}
	return out, nil
}

func (t *memoryTx) InsertCutoff(_ context.Context, rec *CutoffRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.state.cutoffs = append(t.state.cutoffs, rec.clone())
	return nil
}

func (t *memoryTx) LatestCutoff(_ context.Context, cycleID string, phase Phase) (*CutoffRecord, error) {
	for i := len(t.state.cutoffs) - 1; i >= 0; i-- {
		c := t.state.cutoffs[i]
		if c.CycleID == cycleID && c.Phase == phase {
			if c.RevertedAt != nil {
				return nil, nil
			}
			return c.clone(), nil
		}
	}
	return nil, nil
}

func (t *memoryTx) UpdateCutoff(_ context.Context, rec *CutoffRecord) error {
	if err := t.writable(); err != nil {
		return err
	}
	for i, c := range t.state.cutoffs {
		if c.ID == rec.ID {
			t.state.cutoffs[i] = rec.clone()
			return nil
		}
	}
	return apperrors.NewStorageError("update cutoff", fmt.Errorf("cutoff %s not found", rec.ID))
}

func cloneReview(r *Review) *Review {
	out := *r
	out.Scores = copyScores(r.Scores)
	out.QuestionNotes = copyNotes(r.QuestionNotes)
	return &out
}

func copyScores(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyNotes(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
