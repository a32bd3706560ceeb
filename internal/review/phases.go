package review

type phaseDefinition struct {
	// stages an applicant must be in to be reviewed and ranked in the phase
	stages    []Stage
	advanceTo Stage
	interview bool
}

var phaseDefinitions = map[Phase]phaseDefinition{
	PhaseApplication: {
		stages:    []Stage{StageSubmitted, StageUnderReview, StageCoffeeChat},
		advanceTo: StageInterviewRound1,
	},
	PhaseInterviewRound1: {
		stages:    []Stage{StageInterviewRound1},
		advanceTo: StageInterviewRound2,
		interview: true,
	},
	PhaseInterviewRound2: {
		stages:    []Stage{StageInterviewRound2},
		advanceTo: StageFinalReview,
		interview: true,
	},
}

// Phases lists the review phases in pipeline order.
var Phases = []Phase{PhaseApplication, PhaseInterviewRound1, PhaseInterviewRound2}

func (p Phase) Valid() bool {
	_, ok := phaseDefinitions[p]
	return ok
}

// EligibleStages returns the stages whose applicants belong to the phase.
func (p Phase) EligibleStages() []Stage {
	return append([]Stage(nil), phaseDefinitions[p].stages...)
}

// AdvanceStage is where a cutoff moves an advancing applicant.
func (p Phase) AdvanceStage() Stage {
	return phaseDefinitions[p].advanceTo
}

// IsInterview reports whether the phase collects per-question notes.
func (p Phase) IsInterview() bool {
	return phaseDefinitions[p].interview
}

// Includes reports whether an applicant in stage s is eligible for the phase.
func (p Phase) Includes(s Stage) bool {
	for _, st := range phaseDefinitions[p].stages {
		if st == s {
			return true
		}
	}
	return false
}

// targetStage maps a cutoff action to the stage it writes.
func (p Phase) targetStage(a CutoffAction) Stage {
	if a == ActionAdvance {
		return p.AdvanceStage()
	}
	return StageRejected
}
