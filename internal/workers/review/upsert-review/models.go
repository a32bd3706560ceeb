package upsertreview

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

type Input struct {
	ApplicationID  string            `json:"applicationId"`
	Phase          review.Phase      `json:"phase"`
	ReviewerEmail  string            `json:"reviewerEmail"`
	Scores         map[string]int    `json:"scores"`
	Notes          string            `json:"notes"`
	QuestionNotes  map[string]string `json:"questionNotes"`
	ReferralSignal string            `json:"referralSignal"`
}

type Output struct {
	Review      *review.Review `json:"review"`
	ReviewSaved bool           `json:"reviewSaved"`
}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"applicationId": jobvars.ApplicationID,
			"phase":         jobvars.Phase,
			"reviewerEmail": jobvars.Email,
			"scores": {
				Type: "object",
				AdditionalProperties: &validation.Property{
					Type:    "integer",
					Minimum: validation.Float(1),
					Maximum: validation.Float(5),
				},
			},
			"notes": {Type: validation.Nullable("string")},
			"questionNotes": {
				Type:                 validation.Nullable("object"),
				AdditionalProperties: &validation.Property{Type: "string"},
			},
			"referralSignal": {
				Type: validation.Nullable("string"),
				Enum: []interface{}{"", string(review.SignalReferral), string(review.SignalNeutral), string(review.SignalDeferral), nil},
			},
		},
		Required: []string{"applicationId", "phase", "reviewerEmail", "scores"},
	}
}
