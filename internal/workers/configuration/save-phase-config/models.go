package savephaseconfig

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

type Input struct {
	review.SaveConfigRequest
}

type Output struct {
	PhaseConfig        *review.PhaseConfig `json:"phaseConfig"`
	PhaseConfigVersion int64               `json:"phaseConfigVersion"`
}

var keyProperty = validation.Property{Type: "string", MinLength: validation.Int(1), MaxLength: validation.Int(64)}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cycleId": jobvars.CycleID,
			"phase":   jobvars.Phase,
			"track":   jobvars.Track,
			"categories": {
				Type: "array",
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"key":          keyProperty,
						"label":        {Type: validation.Nullable("string")},
						"weight":       {Type: "number", Minimum: validation.Float(0)},
						"mandatory":    jobvars.Flag,
						"descriptions": {Type: validation.Nullable("object")},
					},
					Required: []string{"key", "weight"},
				},
			},
			"minReviewersRequired": {Type: "integer", Minimum: validation.Float(1)},
			"referralWeights": {
				Type: "object",
				Properties: map[string]validation.Property{
					"advocate": {Type: "number"},
					"oppose":   {Type: "number"},
				},
			},
			"interviewQuestions": {
				Type: validation.Nullable("array"),
				Items: &validation.Property{
					Type: "object",
					Properties: map[string]validation.Property{
						"key":    keyProperty,
						"prompt": {Type: "string", MinLength: validation.Int(1)},
					},
					Required: []string{"key", "prompt"},
				},
			},
			"normalize": jobvars.Flag,
		},
		Required: []string{"cycleId", "phase", "categories", "minReviewersRequired"},
	}
}
