package review

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/metrics"
)

// Engine runs review operations against a Store.
type Engine struct {
	store    Store
	defaults Defaults
	cache    RankingCache
	indexer  DecisionIndexer
	notifier Notifier
	logger   logger.Logger
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

type Option func(*Engine)

func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

func WithRankingCache(c RankingCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithDecisionIndexer(i DecisionIndexer) Option {
	return func(e *Engine) { e.indexer = i }
}

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		defaults: DefaultSettings(),
		logger:   log.WithFields(map[string]interface{}{"component": "review-engine"}),
		validate: newValidator(),
		tracer:   otel.Tracer("recruitment-review/review"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) startSpan(ctx context.Context, name, cycleID string, phase Phase) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "review."+name, trace.WithAttributes(
		attribute.String("cycle_id", cycleID),
		attribute.String("phase", string(phase)),
	))
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}

func requirePhase(p Phase) error {
	if !p.Valid() {
		return apperrors.NewValidationErrorf("unknown phase %q", p)
	}
	return nil
}

func requireCycle(cycleID string) error {
	if strings.TrimSpace(cycleID) == "" {
		return apperrors.NewValidationError("cycleId is required")
	}
	return nil
}

// lockConfig materializes the phase config if needed and locks it.
func (e *Engine) lockConfig(ctx context.Context, tx Tx, cycleID string, phase Phase, mode LockMode) (*PhaseConfig, error) {
	if _, err := tx.EnsurePhaseConfig(ctx, e.defaults.phaseConfig(cycleID, phase)); err != nil {
		return nil, err
	}
	cfg, err := tx.GetPhaseConfig(ctx, cycleID, phase, mode)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, apperrors.NewStorageError("lock phase config", errMissingConfig)
	}
	return cfg, nil
}

// loadConfig reads the saved config or falls back to defaults without writing.
func (e *Engine) loadConfig(ctx context.Context, tx Tx, cycleID string, phase Phase) (*PhaseConfig, error) {
	cfg, err := tx.GetPhaseConfig(ctx, cycleID, phase, LockNone)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return e.defaults.phaseConfig(cycleID, phase), nil
	}
	return cfg, nil
}

type phaseData struct {
	apps      []Application
	reviews   []Review
	reviewers []string
	names     map[string]string
}

func (e *Engine) loadPhaseData(ctx context.Context, tx Tx, cfg *PhaseConfig, track string) (*phaseData, error) {
	apps, err := tx.ListApplications(ctx, ApplicationFilter{
		CycleID: cfg.CycleID,
		Stages:  cfg.Phase.EligibleStages(),
		Track:   track,
	})
	if err != nil {
		return nil, err
	}
	reviews, err := tx.ListReviews(ctx, ReviewFilter{CycleID: cfg.CycleID, Phase: cfg.Phase})
	if err != nil {
		return nil, err
	}
	reviewers, err := tx.ListCycleReviewers(ctx, cfg.CycleID)
	if err != nil {
		return nil, err
	}
	names, err := tx.ReviewerNames(ctx, reviewers)
	if err != nil {
		return nil, err
	}
	return &phaseData{apps: apps, reviews: reviews, reviewers: reviewers, names: names}, nil
}

func (d *phaseData) completeness(cfg *PhaseConfig) *CompletenessSnapshot {
	return computeCompleteness(cfg, d.apps, d.reviews, d.reviewers, d.names)
}

func (d *phaseData) ranking(cfg *PhaseConfig) []RankingEntry {
	return buildRanking(d.apps, AggregateScores(cfg, d.reviews))
}

// ==========================
// Review Store
// ==========================

// UpsertReviewRequest is one reviewer's submission for one applicant.
type UpsertReviewRequest struct {
	ApplicationID  string            `json:"applicationId" validate:"required"`
	Phase          Phase             `json:"phase" validate:"required"`
	ReviewerEmail  string            `json:"reviewerEmail" validate:"required,email"`
	Scores         map[string]int    `json:"scores"`
	Notes          string            `json:"notes,omitempty"`
	QuestionNotes  map[string]string `json:"questionNotes,omitempty"`
	ReferralSignal ReferralSignal    `json:"referralSignal,omitempty"`
}

// UpsertReview writes the reviewer's review, replacing any earlier one for
// the same applicant and phase. Fails with PHASE_LOCKED once the phase is
// finalized.
func (e *Engine) UpsertReview(ctx context.Context, req UpsertReviewRequest) (_ *Review, err error) {
	ctx, span := e.startSpan(ctx, "UpsertReview", "", req.Phase)
	defer endSpan(span, &err)

	if err := validateStruct(e.validate, &req); err != nil {
		return nil, err
	}
	if err := requirePhase(req.Phase); err != nil {
		return nil, err
	}
	signal := req.ReferralSignal
	if signal == "" {
		signal = SignalNeutral
	}
	if !signal.Valid() {
		return nil, apperrors.NewValidationErrorf("unknown referral signal %q", signal)
	}

	var saved *Review
	err = e.store.Update(ctx, func(tx Tx) error {
		app, err := tx.GetApplication(ctx, req.ApplicationID)
		if err != nil {
			return err
		}
		cfg, err := e.lockConfig(ctx, tx, app.CycleID, req.Phase, LockShared)
		if err != nil {
			return err
		}
		if cfg.Finalized() {
			return apperrors.NewPhaseLockedError(app.CycleID, string(req.Phase))
		}
		if err := validateScores(cfg, req.Scores); err != nil {
			return err
		}
		if err := validateQuestionNotes(cfg, req.QuestionNotes); err != nil {
			return err
		}

		now := e.now()
		r := &Review{
			ApplicationID:  app.ID,
			CycleID:        app.CycleID,
			Phase:          req.Phase,
			ReviewerEmail:  strings.ToLower(strings.TrimSpace(req.ReviewerEmail)),
			Scores:         copyScores(req.Scores),
			Notes:          req.Notes,
			QuestionNotes:  copyNotes(req.QuestionNotes),
			ReferralSignal: signal,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.UpsertReview(ctx, r); err != nil {
			return err
		}
		saved = r
		return nil
	})
	if err != nil {
		metrics.ReviewsUpserted.WithLabelValues(string(req.Phase), string(apperrors.AsStandardError(err).Code)).Inc()
		return nil, err
	}
	metrics.ReviewsUpserted.WithLabelValues(string(req.Phase), "ok").Inc()

	e.invalidate(ctx, saved.CycleID, saved.Phase)
	e.logger.Debug("review saved", map[string]interface{}{
		"applicationId": saved.ApplicationID,
		"phase":         saved.Phase,
		"reviewer":      saved.ReviewerEmail,
	})
	return saved, nil
}

// ReviewView is a review with its author's display name.
type ReviewView struct {
	Review
	ReviewerName string `json:"reviewerName"`
	Own          bool   `json:"own"`
}

// GetReviews returns every review of an applicant in a phase, flagging the
// requester's own.
func (e *Engine) GetReviews(ctx context.Context, applicationID string, phase Phase, requesterEmail string) (_ []ReviewView, err error) {
	ctx, span := e.startSpan(ctx, "GetReviews", "", phase)
	defer endSpan(span, &err)

	if applicationID == "" {
		return nil, apperrors.NewValidationError("applicationId is required")
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}
	requester := strings.ToLower(strings.TrimSpace(requesterEmail))

	var views []ReviewView
	err = e.store.View(ctx, func(tx Tx) error {
		reviews, err := tx.ListReviews(ctx, ReviewFilter{ApplicationID: applicationID, Phase: phase})
		if err != nil {
			return err
		}
		emails := make([]string, 0, len(reviews))
		for _, r := range reviews {
			emails = append(emails, r.ReviewerEmail)
		}
		names, err := tx.ReviewerNames(ctx, emails)
		if err != nil {
			return err
		}
		views = make([]ReviewView, 0, len(reviews))
		for _, r := range reviews {
			views = append(views, ReviewView{
				Review:       r,
				ReviewerName: displayName(names, r.ReviewerEmail),
				Own:          requester != "" && r.ReviewerEmail == requester,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(views, func(i, j int) bool {
		if views[i].Own != views[j].Own {
			return views[i].Own
		}
		return views[i].ReviewerEmail < views[j].ReviewerEmail
	})
	return views, nil
}

// ==========================
// Phase Configuration
// ==========================

// GetConfig returns the phase's saved config, or the defaults if none was
// saved. Settings are phase-wide, so track never selects a different config.
func (e *Engine) GetConfig(ctx context.Context, cycleID string, phase Phase, track string) (_ *PhaseConfig, err error) {
	ctx, span := e.startSpan(ctx, "GetConfig", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	var cfg *PhaseConfig
	err = e.store.View(ctx, func(tx Tx) error {
		var err error
		cfg, err = e.loadConfig(ctx, tx, cycleID, phase)
		return err
	})
	return cfg, err
}

// SaveConfig replaces the phase's editable settings. Lifecycle fields are
// left alone.
func (e *Engine) SaveConfig(ctx context.Context, req SaveConfigRequest) (_ *PhaseConfig, err error) {
	ctx, span := e.startSpan(ctx, "SaveConfig", req.CycleID, req.Phase)
	defer endSpan(span, &err)

	if err := validateStruct(e.validate, &req); err != nil {
		return nil, err
	}
	if err := requirePhase(req.Phase); err != nil {
		return nil, err
	}
	if req.Track != "" {
		e.logger.Debug("track ignored on config save", map[string]interface{}{"track": req.Track})
	}

	// validate the settings on their own before touching storage
	probe := e.defaults.phaseConfig(req.CycleID, req.Phase)
	req.applyTo(probe)
	if err := validatePhaseConfig(e.validate, probe); err != nil {
		return nil, err
	}

	var saved *PhaseConfig
	err = e.store.Update(ctx, func(tx Tx) error {
		cfg, err := e.lockConfig(ctx, tx, req.CycleID, req.Phase, LockExclusive)
		if err != nil {
			return err
		}
		if cfg.Finalized() {
			return apperrors.NewPhaseLockedError(req.CycleID, string(req.Phase))
		}
		expected := cfg.Version
		req.applyTo(cfg)
		cfg.UpdatedAt = e.now()
		if err := tx.UpdatePhaseConfig(ctx, cfg, expected); err != nil {
			return err
		}
		saved = cfg
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.invalidate(ctx, req.CycleID, req.Phase)
	e.logger.Info("phase config saved", map[string]interface{}{
		"cycleId": req.CycleID,
		"phase":   req.Phase,
		"version": saved.Version,
	})
	return saved, nil
}

// InitializeConfigs creates default configs for every phase of the cycle
// that has none and returns the phases it created. Safe to repeat.
func (e *Engine) InitializeConfigs(ctx context.Context, cycleID string) (_ []Phase, err error) {
	ctx, span := e.startSpan(ctx, "InitializeConfigs", cycleID, "")
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}

	created := []Phase{}
	err = e.store.Update(ctx, func(tx Tx) error {
		for _, phase := range Phases {
			ok, err := tx.EnsurePhaseConfig(ctx, e.defaults.phaseConfig(cycleID, phase))
			if err != nil {
				return err
			}
			if ok {
				created = append(created, phase)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ==========================
// Completeness & Ranking
// ==========================

// ComputeCompleteness reports per-reviewer coverage of the phase's eligible
// applicants, optionally restricted to one track.
func (e *Engine) ComputeCompleteness(ctx context.Context, cycleID string, phase Phase, track string) (_ *CompletenessSnapshot, err error) {
	ctx, span := e.startSpan(ctx, "ComputeCompleteness", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	var snap *CompletenessSnapshot
	err = e.store.View(ctx, func(tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, cycleID, phase)
		if err != nil {
			return err
		}
		data, err := e.loadPhaseData(ctx, tx, cfg, track)
		if err != nil {
			return err
		}
		snap = data.completeness(cfg)
		return nil
	})
	return snap, err
}

// BuildRanking ranks the phase's eligible applicants.
func (e *Engine) BuildRanking(ctx context.Context, cycleID string, phase Phase, track string) (_ *Ranking, err error) {
	ctx, span := e.startSpan(ctx, "BuildRanking", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	key := RankingKey{CycleID: cycleID, Phase: phase, Track: track}
	cached, generation, cacheable := e.cachedRanking(ctx, key)
	if cached != nil {
		return cached, nil
	}

	start := time.Now()
	var ranking *Ranking
	err = e.store.View(ctx, func(tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, cycleID, phase)
		if err != nil {
			return err
		}
		data, err := e.loadPhaseData(ctx, tx, cfg, track)
		if err != nil {
			return err
		}
		ranking = &Ranking{
			CycleID:     cycleID,
			Phase:       phase,
			Track:       track,
			Entries:     data.ranking(cfg),
			GeneratedAt: e.now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RankingBuildDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())

	if cacheable {
		if err := e.cache.PutRanking(ctx, key, generation, ranking); err != nil {
			e.logger.Warn("failed to cache ranking", map[string]interface{}{"error": err.Error()})
		}
	}
	return ranking, nil
}

// cachedRanking looks the key up. On a miss it returns the generation to
// store the rebuilt ranking under; cacheable is false when the cache is off
// or unreachable.
func (e *Engine) cachedRanking(ctx context.Context, key RankingKey) (r *Ranking, generation int64, cacheable bool) {
	if e.cache == nil {
		return nil, 0, false
	}
	r, generation, err := e.cache.GetRanking(ctx, key)
	switch {
	case err != nil:
		metrics.RankingCacheLookups.WithLabelValues("error").Inc()
		e.logger.Warn("ranking cache lookup failed", map[string]interface{}{"error": err.Error()})
		return nil, 0, false
	case r == nil:
		metrics.RankingCacheLookups.WithLabelValues("miss").Inc()
		return nil, generation, true
	}
	metrics.RankingCacheLookups.WithLabelValues("hit").Inc()
	return r, generation, true
}

// invalidate drops cached rankings after a committed write.
func (e *Engine) invalidate(ctx context.Context, cycleID string, phases ...Phase) {
	if e.cache == nil {
		return
	}
	for _, p := range phases {
		if err := e.cache.Invalidate(ctx, cycleID, p); err != nil {
			e.logger.Warn("ranking cache invalidation failed", map[string]interface{}{
				"cycleId": cycleID,
				"phase":   p,
				"error":   err.Error(),
			})
		}
	}
}

var errMissingConfig = errors.New("phase config missing after insert")
