package senddecisionnotification

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/common/validation"
)

const TaskType = "send-decision-notification"

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type Handler struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	runner    *camunda.JobRunner
	now       func() time.Time
}

func NewHandler(config *Config, sesClient SESService, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		logger:    log,
		sesClient: sesClient,
		runner:    camunda.NewJobRunner(TaskType, config.Timeout, log, obs),
		now:       time.Now,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		var input Input
		if err := camunda.ParseVariables(job, GetInputSchema(), &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{
		NotificationID: uuid.New().String(),
		SentAt:         h.now().UTC().Format(time.RFC3339),
	}

	if !h.config.EmailEnabled || h.sesClient == nil {
		out.NotificationStatus = StatusDisabled
		return out, nil
	}
	if !validation.ValidateEmail(input.ApplicantEmail) {
		h.logger.Warn("applicant has no usable email", map[string]interface{}{
			"applicationId": input.ApplicationID,
		})
		out.NotificationStatus = StatusSkipped
		return out, nil
	}

	tmpl, ok := templates[input.Action]
	if !ok {
		return nil, errors.NewValidationErrorf("no template for action %q", input.Action)
	}
	data := templateData(input)
	subject := renderTemplate(tmpl.subject, data)
	if h.config.SubjectPrefix != "" {
		subject = h.config.SubjectPrefix + " " + subject
	}
	body := renderTemplate(tmpl.body, data)

	if err := h.sendEmail(ctx, input.ApplicantEmail, subject, body); err != nil {
		return nil, errors.NewNotificationSendFailedError("email", err)
	}

	h.logger.Info("decision email sent", map[string]interface{}{
		"applicationId":  input.ApplicationID,
		"action":         string(input.Action),
		"notificationId": out.NotificationID,
	})
	out.NotificationStatus = StatusSent
	return out, nil
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}
