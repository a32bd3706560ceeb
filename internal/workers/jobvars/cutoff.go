package jobvars

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
)

// CutoffInput is the job input of preview-cutoff and apply-cutoff.
type CutoffInput struct {
	CycleID          string            `json:"cycleId"`
	Phase            review.Phase      `json:"phase"`
	Track            string            `json:"track"`
	TopN             *int              `json:"topN"`
	MinWeightedScore *float64          `json:"minWeightedScore"`
	Overrides        []review.Override `json:"overrides"`
	ForceFinalize    bool              `json:"forceFinalize"`
	DeferFinalize    bool              `json:"deferFinalize"`
	Notify           *bool             `json:"notify"`
	AppliedBy        string            `json:"appliedBy"`
}

// Request maps the input to the engine request. Notifications default to on.
func (in *CutoffInput) Request() review.CutoffRequest {
	notify := true
	if in.Notify != nil {
		notify = *in.Notify
	}
	return review.CutoffRequest{
		CycleID: in.CycleID,
		Phase:   in.Phase,
		Track:   in.Track,
		Criteria: review.CutoffCriteria{
			TopN:             in.TopN,
			MinWeightedScore: in.MinWeightedScore,
		},
		Overrides:     in.Overrides,
		ForceFinalize: in.ForceFinalize,
		DeferFinalize: in.DeferFinalize,
		Notify:        notify,
		AppliedBy:     in.AppliedBy,
	}
}

func CutoffSchema(requireActor bool) validation.JSONSchema {
	schema := validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cycleId":          CycleID,
			"phase":            Phase,
			"track":            Track,
			"topN":             {Type: validation.Nullable("integer"), Minimum: validation.Float(0)},
			"minWeightedScore": {Type: validation.Nullable("number")},
			"overrides": {
				Type: validation.Nullable("array"),
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"applicationId": ApplicationID,
						"action":        {Type: "string", Enum: []interface{}{string(review.ActionAdvance), string(review.ActionReject)}},
						"reason":        {Type: validation.Nullable("string")},
					},
					Required: []string{"applicationId", "action"},
				},
			},
			"forceFinalize": Flag,
			"deferFinalize": Flag,
			"notify":        Flag,
			"appliedBy":     {Type: validation.Nullable("string")},
		},
		Required: []string{"cycleId", "phase"},
	}
	if requireActor {
		schema.Properties["appliedBy"] = Email
		schema.Required = append(schema.Required, "appliedBy")
	}
	return schema
}
