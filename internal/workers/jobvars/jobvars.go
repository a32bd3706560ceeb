// Package jobvars holds the job-variable schema fragments shared by the
// review workers.
package jobvars

import (
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
)

var (
	CycleID = validation.Property{Type: "string", MinLength: validation.Int(1)}

	ApplicationID = validation.Property{Type: "string", MinLength: validation.Int(1)}

	Phase = validation.Property{Type: "string", Enum: phaseEnum()}

	// Track is optional; null and "" both mean every track.
	Track = validation.Property{Type: validation.Nullable("string")}

	Email = validation.Property{Type: "string", Format: "email"}

	Flag = validation.Property{Type: validation.Nullable("boolean")}
)

func phaseEnum() []interface{} {
	values := make([]interface{}, len(review.Phases))
	for i, p := range review.Phases {
		values[i] = string(p)
	}
	return values
}

// PhaseScoped is the schema of workers that only take cycleId, phase and an
// optional track.
func PhaseScoped() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"cycleId": CycleID,
			"phase":   Phase,
			"track":   Track,
		},
		Required: []string{"cycleId", "phase"},
	}
}

// PhaseRef is the input of workers addressed by cycle and phase.
type PhaseRef struct {
	CycleID string       `json:"cycleId"`
	Phase   review.Phase `json:"phase"`
	Track   string       `json:"track"`
}
