package review

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "recruitment-review/internal/common/errors"
)

// Defaults seed phases that have no saved config.
type Defaults struct {
	Categories           []ScoringCategory
	MinReviewersRequired int
	ReferralWeights      ReferralWeights
	Normalize            bool
}

// DefaultSettings returns the built-in rubric: four equally weighted
// categories with overall mandatory, two reviewers, referral weights +1/-1.
func DefaultSettings() Defaults {
	return Defaults{
		Categories: []ScoringCategory{
			{Key: "overall", Label: "Overall", Weight: 1.0, Mandatory: true},
			{Key: "experience", Label: "Experience", Weight: 1.0},
			{Key: "motivation", Label: "Motivation", Weight: 1.0},
			{Key: "fit", Label: "Fit", Weight: 1.0},
		},
		MinReviewersRequired: 2,
		ReferralWeights:      ReferralWeights{Advocate: 1, Oppose: -1},
	}
}

func (d Defaults) phaseConfig(cycleID string, phase Phase) *PhaseConfig {
	cats := d.Categories
	if len(cats) == 0 {
		cats = DefaultSettings().Categories
	}
	minReviewers := d.MinReviewersRequired
	if minReviewers < 1 {
		minReviewers = 1
	}
	cfg := &PhaseConfig{
		CycleID:              cycleID,
		Phase:                phase,
		Categories:           append([]ScoringCategory(nil), cats...),
		MinReviewersRequired: minReviewers,
		ReferralWeights:      d.ReferralWeights,
		Normalize:            d.Normalize,
		Status:               PhaseStatusOpen,
	}
	ensureMandatory(cfg.Categories)
	return cfg
}

// ensureMandatory flags the first category when none is mandatory.
func ensureMandatory(cats []ScoringCategory) {
	for _, c := range cats {
		if c.Mandatory {
			return
		}
	}
	if len(cats) > 0 {
		cats[0].Mandatory = true
	}
}

// SaveConfigRequest carries editable phase settings. Track is accepted for
// symmetry with the read path; settings are always phase-wide.
type SaveConfigRequest struct {
	CycleID              string              `json:"cycleId" validate:"required"`
	Phase                Phase               `json:"phase" validate:"required"`
	Track                string              `json:"track,omitempty"`
	Categories           []ScoringCategory   `json:"categories"`
	MinReviewersRequired int                 `json:"minReviewersRequired"`
	ReferralWeights      ReferralWeights     `json:"referralWeights"`
	InterviewQuestions   []InterviewQuestion `json:"interviewQuestions,omitempty"`
	Normalize            bool                `json:"normalize"`
}

func (r *SaveConfigRequest) applyTo(cfg *PhaseConfig) {
	cfg.Categories = make([]ScoringCategory, len(r.Categories))
	for i, c := range r.Categories {
		c.Key = strings.TrimSpace(c.Key)
		if c.Label == "" {
			c.Label = c.Key
		}
		cfg.Categories[i] = c
	}
	ensureMandatory(cfg.Categories)
	cfg.MinReviewersRequired = r.MinReviewersRequired
	cfg.ReferralWeights = r.ReferralWeights
	cfg.InterviewQuestions = append([]InterviewQuestion(nil), r.InterviewQuestions...)
	cfg.Normalize = r.Normalize
}

func newValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// validateStruct runs struct tag validation and converts failures into a
// single validation error.
func validateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return apperrors.NewValidationError(strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "unique":
		return fmt.Sprintf("%s must have unique %s values", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func validatePhaseConfig(v *validator.Validate, cfg *PhaseConfig) error {
	if !cfg.Phase.Valid() {
		return apperrors.NewValidationErrorf("unknown phase %q", cfg.Phase)
	}
	if err := validateStruct(v, cfg); err != nil {
		return err
	}
	if len(cfg.InterviewQuestions) > 0 && !cfg.Phase.IsInterview() {
		return apperrors.NewValidationErrorf("phase %s does not take interview questions", cfg.Phase)
	}
	return nil
}

// validateScores checks a review's scores against the phase's categories.
func validateScores(cfg *PhaseConfig, scores map[string]int) error {
	if len(scores) == 0 {
		return apperrors.NewValidationError("scores must not be empty")
	}
	for key, v := range scores {
		if _, ok := cfg.Category(key); !ok {
			return apperrors.NewValidationErrorf("unknown scoring category %q", key)
		}
		if v < 1 || v > 5 {
			return apperrors.NewValidationErrorf("score for %q must be between 1 and 5, got %d", key, v)
		}
	}
	for _, c := range cfg.Categories {
		if !c.Mandatory {
			continue
		}
		if _, ok := scores[c.Key]; !ok {
			return apperrors.NewValidationErrorf("mandatory category %q is missing a score", c.Key)
		}
	}
	return nil
}

func validateQuestionNotes(cfg *PhaseConfig, notes map[string]string) error {
	if len(notes) == 0 {
		return nil
	}
	if !cfg.Phase.IsInterview() {
		return apperrors.NewValidationErrorf("phase %s does not take question notes", cfg.Phase)
	}
	known := make(map[string]bool, len(cfg.InterviewQuestions))
	for _, q := range cfg.InterviewQuestions {
		known[q.Key] = true
	}
	for key := range notes {
		if !known[key] {
			return apperrors.NewValidationErrorf("unknown interview question %q", key)
		}
	}
	return nil
}
