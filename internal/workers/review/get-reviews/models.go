package getreviews

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

type Input struct {
	ApplicationID  string       `json:"applicationId"`
	Phase          review.Phase `json:"phase"`
	RequesterEmail string       `json:"requesterEmail"`
}

type Output struct {
	Reviews     []review.ReviewView `json:"reviews"`
	ReviewCount int                 `json:"reviewCount"`
	// OwnReviewed tells the form whether to open in edit mode.
	OwnReviewed bool `json:"ownReviewed"`
}

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"applicationId":  jobvars.ApplicationID,
			"phase":          jobvars.Phase,
			"requesterEmail": {Type: validation.Nullable("string")},
		},
		Required: []string{"applicationId", "phase"},
	}
}
