package upsertreview

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/review"
)

const TaskType = "upsert-review"

type Service interface {
	UpsertReview(ctx context.Context, req review.UpsertReviewRequest) (*review.Review, error)
}

type Handler struct {
	config  *Config
	service Service
	logger  logger.Logger
	runner  *camunda.JobRunner
}

func NewHandler(config *Config, service Service, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		service: service,
		logger:  log,
		runner:  camunda.NewJobRunner(TaskType, config.Timeout, log, obs),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.runner.Run(client, job, func(ctx context.Context) (interface{}, error) {
		input, err := h.parseInput(job)
		if err != nil {
			return nil, err
		}
		return h.Execute(ctx, input)
	})
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	var input Input
	if err := camunda.ParseVariables(job, GetInputSchema(), &input); err != nil {
		return nil, err
	}
	return &input, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	saved, err := h.service.UpsertReview(ctx, review.UpsertReviewRequest{
		ApplicationID:  input.ApplicationID,
		Phase:          input.Phase,
		ReviewerEmail:  input.ReviewerEmail,
		Scores:         input.Scores,
		Notes:          input.Notes,
		QuestionNotes:  input.QuestionNotes,
		ReferralSignal: review.ReferralSignal(input.ReferralSignal),
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("review saved", map[string]interface{}{
		"applicationId": saved.ApplicationID,
		"phase":         string(saved.Phase),
		"reviewer":      saved.ReviewerEmail,
	})
	return &Output{Review: saved, ReviewSaved: true}, nil
}
