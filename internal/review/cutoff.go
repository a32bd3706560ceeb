package review

import (
	apperrors "recruitment-review/internal/common/errors"
)

func validateCriteria(c CutoffCriteria) error {
	if c.TopN == nil && c.MinWeightedScore == nil {
		return apperrors.NewValidationError("cutoff needs topN or minWeightedScore")
	}
	if c.TopN != nil && *c.TopN < 0 {
		return apperrors.NewValidationErrorf("topN must not be negative, got %d", *c.TopN)
	}
	return nil
}

// naturalAction is the decision the criteria alone make for an entry.
// Applicants without a weighted score never advance on their own.
func naturalAction(e RankingEntry, c CutoffCriteria) CutoffAction {
	if e.WeightedScore == nil {
		return ActionReject
	}
	if c.TopN != nil && e.Rank > *c.TopN {
		return ActionReject
	}
	if c.MinWeightedScore != nil && *e.WeightedScore < *c.MinWeightedScore {
		return ActionReject
	}
	return ActionAdvance
}

// decideCutoff turns a ranking into per-applicant decisions. Overrides must
// name applicants in the ranking, at most once each.
func decideCutoff(phase Phase, entries []RankingEntry, criteria CutoffCriteria, overrides []Override) ([]Decision, error) {
	if err := validateCriteria(criteria); err != nil {
		return nil, err
	}

	inRanking := make(map[string]bool, len(entries))
	for _, e := range entries {
		inRanking[e.ApplicationID] = true
	}

	byApp := make(map[string]Override, len(overrides))
	for _, o := range overrides {
		if !o.Action.Valid() {
			return nil, apperrors.NewValidationErrorf("override for %s has unknown action %q", o.ApplicationID, o.Action)
		}
		if !inRanking[o.ApplicationID] {
			return nil, apperrors.NewValidationErrorf("override for %s does not match an eligible applicant", o.ApplicationID)
		}
		if _, dup := byApp[o.ApplicationID]; dup {
			return nil, apperrors.NewValidationErrorf("duplicate override for %s", o.ApplicationID)
		}
		byApp[o.ApplicationID] = o
	}

	decisions := make([]Decision, 0, len(entries))
	for _, e := range entries {
		d := Decision{
			ApplicationID:  e.ApplicationID,
			ApplicantName:  e.ApplicantName,
			ApplicantEmail: e.ApplicantEmail,
			Track:          e.Track,
			Rank:           e.Rank,
			WeightedScore:  e.WeightedScore,
			NaturalAction:  naturalAction(e, criteria),
			FromStage:      e.Stage,
		}
		d.Action = d.NaturalAction
		if o, ok := byApp[e.ApplicationID]; ok {
			d.Action = o.Action
			d.Overridden = true
			d.Reason = o.Reason
		}
		d.ToStage = phase.targetStage(d.Action)
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// ToggleOverride flips one applicant away from its natural decision, or back
// to it when an override already exists.
func ToggleOverride(overrides []Override, d Decision, reason string) []Override {
	out := make([]Override, 0, len(overrides)+1)
	removed := false
	for _, o := range overrides {
		if o.ApplicationID == d.ApplicationID {
			removed = true
			continue
		}
		out = append(out, o)
	}
	if removed {
		return out
	}
	return append(out, Override{
		ApplicationID: d.ApplicationID,
		Action:        d.NaturalAction.opposite(),
		Reason:        reason,
	})
}
