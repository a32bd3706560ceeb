package review

import (
	"context"
	"strconv"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/metrics"
)

// CutoffRequest describes a cutoff over a phase's ranking.
type CutoffRequest struct {
	CycleID   string         `json:"cycleId" validate:"required"`
	Phase     Phase          `json:"phase" validate:"required"`
	Track     string         `json:"track,omitempty"`
	Criteria  CutoffCriteria `json:"criteria"`
	Overrides []Override     `json:"overrides,omitempty" validate:"dive"`
	// ForceFinalize skips the completeness gate.
	ForceFinalize bool `json:"forceFinalize"`
	// DeferFinalize applies the transitions but leaves the phase open for a
	// later FinalizePhase.
	DeferFinalize bool   `json:"deferFinalize"`
	Notify        bool   `json:"notify"`
	AppliedBy     string `json:"appliedBy,omitempty"`
}

// CutoffPreview is what ApplyCutoff would do right now.
type CutoffPreview struct {
	Status       PhaseStatus           `json:"status"`
	Decisions    []Decision            `json:"decisions"`
	Overrides    []Override            `json:"overrides"`
	Completeness *CompletenessSnapshot `json:"completeness"`
	Advancing    int                   `json:"advancing"`
	Rejecting    int                   `json:"rejecting"`
	// Blocked is set when incomplete reviews would stop the cutoff.
	Blocked bool `json:"blocked"`
}

func (e *Engine) validateCutoffRequest(req *CutoffRequest) error {
	if err := validateStruct(e.validate, req); err != nil {
		return err
	}
	if err := requirePhase(req.Phase); err != nil {
		return err
	}
	return validateCriteria(req.Criteria)
}

// PreviewCutoff computes decisions without writing anything.
func (e *Engine) PreviewCutoff(ctx context.Context, req CutoffRequest) (_ *CutoffPreview, err error) {
	ctx, span := e.startSpan(ctx, "PreviewCutoff", req.CycleID, req.Phase)
	defer endSpan(span, &err)

	if err := e.validateCutoffRequest(&req); err != nil {
		return nil, err
	}

	var preview *CutoffPreview
	err = e.store.View(ctx, func(tx Tx) error {
		cfg, err := e.loadConfig(ctx, tx, req.CycleID, req.Phase)
		if err != nil {
			return err
		}
		data, err := e.loadPhaseData(ctx, tx, cfg, req.Track)
		if err != nil {
			return err
		}
		decisions, err := decideCutoff(req.Phase, data.ranking(cfg), req.Criteria, req.Overrides)
		if err != nil {
			return err
		}
		snap := data.completeness(cfg)
		preview = &CutoffPreview{
			Status:       cfg.Status,
			Decisions:    decisions,
			Overrides:    append([]Override{}, req.Overrides...),
			Completeness: snap,
			Blocked:      !snap.Complete() && !req.ForceFinalize,
		}
		for _, d := range decisions {
			if d.Action == ActionAdvance {
				preview.Advancing++
			} else {
				preview.Rejecting++
			}
		}
		return nil
	})
	return preview, err
}

// ApplyCutoff advances or rejects every eligible applicant and, unless
// deferred, finalizes the phase. The ranking is recomputed while holding the
// exclusive phase lock, and every write happens in one transaction.
func (e *Engine) ApplyCutoff(ctx context.Context, req CutoffRequest) (_ *CutoffRecord, err error) {
	ctx, span := e.startSpan(ctx, "ApplyCutoff", req.CycleID, req.Phase)
	defer endSpan(span, &err)

	if err := e.validateCutoffRequest(&req); err != nil {
		return nil, err
	}

	var rec *CutoffRecord
	err = e.store.Update(ctx, func(tx Tx) error {
		cfg, err := e.lockConfig(ctx, tx, req.CycleID, req.Phase, LockExclusive)
		if err != nil {
			return err
		}
		if cfg.Finalized() {
			return apperrors.NewPhaseLockedError(req.CycleID, string(req.Phase))
		}

		data, err := e.loadPhaseData(ctx, tx, cfg, req.Track)
		if err != nil {
			return err
		}
		if snap := data.completeness(cfg); !req.ForceFinalize && !snap.Complete() {
			emails := make([]string, 0, len(snap.IncompleteAdmins))
			for _, p := range snap.IncompleteAdmins {
				emails = append(emails, p.Email)
			}
			return apperrors.NewIncompleteReviewsError(emails)
		}

		decisions, err := decideCutoff(req.Phase, data.ranking(cfg), req.Criteria, req.Overrides)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			if err := tx.UpdateApplicationStage(ctx, d.ApplicationID, d.FromStage, d.ToStage); err != nil {
				return err
			}
		}

		now := e.now()
		rec = &CutoffRecord{
			ID:        e.newID(),
			CycleID:   req.CycleID,
			Phase:     req.Phase,
			Track:     req.Track,
			Criteria:  req.Criteria,
			Overrides: append([]Override(nil), req.Overrides...),
			Decisions: decisions,
			Forced:    req.ForceFinalize,
			AppliedBy: req.AppliedBy,
			AppliedAt: now,
		}

		if !req.DeferFinalize {
			if err := e.finalize(ctx, tx, cfg, false); err != nil {
				return err
			}
			rec.Finalized = true
		}
		return tx.InsertCutoff(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	advanced, rejected := rec.Counts()
	e.logger.Info("cutoff applied", map[string]interface{}{
		"cycleId":   rec.CycleID,
		"phase":     rec.Phase,
		"track":     rec.Track,
		"cutoffId":  rec.ID,
		"advanced":  advanced,
		"rejected":  rejected,
		"forced":    rec.Forced,
		"finalized": rec.Finalized,
		"appliedBy": rec.AppliedBy,
	})
	for _, d := range rec.Decisions {
		metrics.CutoffDecisions.WithLabelValues(string(rec.Phase), string(d.Action), strconv.FormatBool(d.Overridden)).Inc()
	}
	if rec.Finalized {
		metrics.PhaseTransitions.WithLabelValues(string(rec.Phase), "finalize").Inc()
	}

	e.invalidate(ctx, rec.CycleID, Phases...)
	e.index(ctx, rec)
	if req.Notify {
		e.notify(ctx, rec)
	}
	return rec, nil
}

// finalize flips an open phase to finalized with a version check. A relock
// keeps the time the cutoff was first applied.
func (e *Engine) finalize(ctx context.Context, tx Tx, cfg *PhaseConfig, relock bool) error {
	expected := cfg.Version
	now := e.now()
	cfg.Status = PhaseStatusFinalized
	if !relock || cfg.CutoffAppliedAt == nil {
		cfg.CutoffAppliedAt = &now
	}
	cfg.UpdatedAt = now
	return tx.UpdatePhaseConfig(ctx, cfg, expected)
}

// FinalizePhase locks a phase whose cutoff was applied with DeferFinalize,
// or re-locks an unlocked phase.
func (e *Engine) FinalizePhase(ctx context.Context, cycleID string, phase Phase) (_ *PhaseConfig, err error) {
	ctx, span := e.startSpan(ctx, "FinalizePhase", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	var (
		cfg *PhaseConfig
		rec *CutoffRecord
	)
	err = e.store.Update(ctx, func(tx Tx) error {
		var err error
		cfg, err = e.lockConfig(ctx, tx, cycleID, phase, LockExclusive)
		if err != nil {
			return err
		}
		if cfg.Finalized() {
			return apperrors.NewPhaseLockedError(cycleID, string(phase))
		}
		rec, err = tx.LatestCutoff(ctx, cycleID, phase)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperrors.NewValidationErrorf("no cutoff has been applied to %s", phase)
		}
		if err := e.finalize(ctx, tx, cfg, rec.Finalized); err != nil {
			return err
		}
		rec.Finalized = true
		return tx.UpdateCutoff(ctx, rec)
	})
	if err != nil {
		return nil, err
	}

	metrics.PhaseTransitions.WithLabelValues(string(phase), "finalize").Inc()
	e.logger.Info("phase finalized", map[string]interface{}{"cycleId": cycleID, "phase": phase, "cutoffId": rec.ID})
	e.invalidate(ctx, cycleID, phase)
	e.index(ctx, rec)
	return cfg, nil
}

// UnlockPhase reopens a finalized phase. Reviews and stage transitions stay.
func (e *Engine) UnlockPhase(ctx context.Context, cycleID string, phase Phase) (_ *PhaseConfig, err error) {
	ctx, span := e.startSpan(ctx, "UnlockPhase", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	var cfg *PhaseConfig
	err = e.store.Update(ctx, func(tx Tx) error {
		var err error
		cfg, err = tx.GetPhaseConfig(ctx, cycleID, phase, LockExclusive)
		if err != nil {
			return err
		}
		if cfg == nil || !cfg.Finalized() {
			return apperrors.NewPhaseNotFinalizedError(cycleID, string(phase))
		}
		expected := cfg.Version
		cfg.Status = PhaseStatusOpen
		cfg.UpdatedAt = e.now()
		return tx.UpdatePhaseConfig(ctx, cfg, expected)
	})
	if err != nil {
		return nil, err
	}

	metrics.PhaseTransitions.WithLabelValues(string(phase), "unlock").Inc()
	e.logger.Info("phase unlocked", map[string]interface{}{"cycleId": cycleID, "phase": phase})
	e.invalidate(ctx, cycleID, phase)
	return cfg, nil
}

// StageChange describes one applicant touched, or skipped, by a revert.
type StageChange struct {
	ApplicationID string `json:"applicationId"`
	From          Stage  `json:"from"`
	To            Stage  `json:"to"`
	// CurrentStage is set for skipped applicants: where they are now.
	CurrentStage Stage `json:"currentStage,omitempty"`
}

// RevertResult reports what RevertPhase did.
type RevertResult struct {
	CutoffID string       `json:"cutoffId"`
	Config   *PhaseConfig `json:"config"`
	Restored []StageChange `json:"restored"`
	Skipped  []StageChange `json:"skipped"`
}

// RevertPhase undoes the latest cutoff: applicants still in the stage the
// cutoff put them in go back to their previous stage, the phase reopens and
// cutoffAppliedAt is cleared. Applicants moved since then are left alone and
// reported as skipped.
func (e *Engine) RevertPhase(ctx context.Context, cycleID string, phase Phase) (_ *RevertResult, err error) {
	ctx, span := e.startSpan(ctx, "RevertPhase", cycleID, phase)
	defer endSpan(span, &err)

	if err := requireCycle(cycleID); err != nil {
		return nil, err
	}
	if err := requirePhase(phase); err != nil {
		return nil, err
	}

	var (
		res = &RevertResult{Restored: []StageChange{}, Skipped: []StageChange{}}
		rec *CutoffRecord
	)
	err = e.store.Update(ctx, func(tx Tx) error {
		cfg, err := e.lockConfig(ctx, tx, cycleID, phase, LockExclusive)
		if err != nil {
			return err
		}
		rec, err = tx.LatestCutoff(ctx, cycleID, phase)
		if err != nil {
			return err
		}
		if rec == nil {
			return apperrors.NewNothingToRevertError(cycleID, string(phase))
		}

		ids := make([]string, 0, len(rec.Decisions))
		for _, d := range rec.Decisions {
			ids = append(ids, d.ApplicationID)
		}
		current := make(map[string]Stage, len(ids))
		if len(ids) > 0 {
			apps, err := tx.ListApplications(ctx, ApplicationFilter{IDs: ids})
			if err != nil {
				return err
			}
			for _, a := range apps {
				current[a.ID] = a.Stage
			}
		}

		for _, d := range rec.Decisions {
			change := StageChange{ApplicationID: d.ApplicationID, From: d.ToStage, To: d.FromStage}
			if stage, ok := current[d.ApplicationID]; !ok || stage != d.ToStage {
				change.CurrentStage = stage
				res.Skipped = append(res.Skipped, change)
				continue
			}
			if err := tx.UpdateApplicationStage(ctx, d.ApplicationID, d.ToStage, d.FromStage); err != nil {
				return err
			}
			res.Restored = append(res.Restored, change)
		}

		now := e.now()
		rec.RevertedAt = &now
		if err := tx.UpdateCutoff(ctx, rec); err != nil {
			return err
		}

		expected := cfg.Version
		cfg.Status = PhaseStatusOpen
		cfg.CutoffAppliedAt = nil
		cfg.UpdatedAt = now
		if err := tx.UpdatePhaseConfig(ctx, cfg, expected); err != nil {
			return err
		}
		res.Config = cfg
		res.CutoffID = rec.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PhaseTransitions.WithLabelValues(string(phase), "revert").Inc()
	e.logger.Info("cutoff reverted", map[string]interface{}{
		"cycleId":  cycleID,
		"phase":    phase,
		"cutoffId": res.CutoffID,
		"restored": len(res.Restored),
		"skipped":  len(res.Skipped),
	})
	e.invalidate(ctx, cycleID, Phases...)
	e.index(ctx, rec)
	return res, nil
}

func (e *Engine) index(ctx context.Context, rec *CutoffRecord) {
	if e.indexer == nil {
		return
	}
	if err := e.indexer.IndexCutoff(ctx, rec); err != nil {
		e.logger.Warn("failed to index cutoff record", map[string]interface{}{
			"cutoffId": rec.ID,
			"error":    err.Error(),
		})
	}
}

func (e *Engine) notify(ctx context.Context, rec *CutoffRecord) {
	if e.notifier == nil || len(rec.Decisions) == 0 {
		return
	}
	event := DecisionEvent{
		CutoffID:  rec.ID,
		CycleID:   rec.CycleID,
		Phase:     rec.Phase,
		Finalized: rec.Finalized,
		Decisions: append([]Decision(nil), rec.Decisions...),
	}
	if err := e.notifier.NotifyDecisions(ctx, event); err != nil {
		e.logger.Warn("decision notification failed", map[string]interface{}{
			"cutoffId": rec.ID,
			"error":    err.Error(),
		})
	}
}
