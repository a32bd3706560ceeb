package senddecisionnotification

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

// Input carries the variables of the decision message that started the
// notification process.
type Input struct {
	CutoffID       string              `json:"cutoffId"`
	CycleID        string              `json:"cycleId"`
	Phase          review.Phase        `json:"phase"`
	ApplicationID  string              `json:"applicationId"`
	ApplicantName  string              `json:"applicantName"`
	ApplicantEmail string              `json:"applicantEmail"`
	Action         review.CutoffAction `json:"action"`
	ToStage        review.Stage        `json:"toStage"`
}

type Output struct {
	NotificationID     string `json:"notificationId"`
	NotificationStatus string `json:"notificationStatus"`
	SentAt             string `json:"sentAt"` // ISO 8601
}

const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
	StatusSkipped  = "skipped"
)

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cutoffId":       {Type: "string"},
			"cycleId":        jobvars.CycleID,
			"phase":          jobvars.Phase,
			"applicationId":  jobvars.ApplicationID,
			"applicantName":  {Type: validation.Nullable("string")},
			"applicantEmail": {Type: validation.Nullable("string")},
			"action":         {Type: "string", Enum: []interface{}{string(review.ActionAdvance), string(review.ActionReject)}},
			"toStage":        {Type: "string"},
		},
		Required: []string{"cycleId", "phase", "applicationId", "action"},
	}
}
