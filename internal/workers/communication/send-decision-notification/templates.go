package senddecisionnotification

import (
	"fmt"
	"strings"

	"recruitment-review/internal/review"
)

type emailTemplate struct {
	subject string
	body    string
}

var templates = map[review.CutoffAction]emailTemplate{
	review.ActionAdvance: {
		subject: "Your application is moving forward",
		body: "Hi {{applicantName}},\n\n" +
			"Thank you for your patience during the {{phaseLabel}}. We are glad to let you know " +
			"that you have been selected for the {{nextStepLabel}}. We will be in touch shortly " +
			"with the details.\n\nReference: {{applicationId}}",
	},
	review.ActionReject: {
		subject: "An update on your application",
		body: "Hi {{applicantName}},\n\n" +
			"Thank you for the time you put into your application. After careful review during the " +
			"{{phaseLabel}}, we will not be moving forward with your application this cycle.\n\n" +
			"Reference: {{applicationId}}",
	},
}

var phaseLabels = map[review.Phase]string{
	review.PhaseApplication:     "application review",
	review.PhaseInterviewRound1: "first interview round",
	review.PhaseInterviewRound2: "second interview round",
}

var stageLabels = map[review.Stage]string{
	review.StageInterviewRound1: "first interview round",
	review.StageInterviewRound2: "second interview round",
	review.StageFinalReview:     "final review",
}

// renderTemplate replaces {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}

func templateData(input *Input) map[string]interface{} {
	name := input.ApplicantName
	if name == "" {
		name = "there"
	}
	next := stageLabels[input.ToStage]
	if next == "" {
		next = "next stage"
	}
	return map[string]interface{}{
		"applicantName": name,
		"applicationId": input.ApplicationID,
		"phaseLabel":    phaseLabels[input.Phase],
		"nextStepLabel": next,
	}
}
