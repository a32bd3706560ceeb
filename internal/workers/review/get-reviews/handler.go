package getreviews

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/review"
)

const TaskType = "get-reviews"

type Service interface {
	GetReviews(ctx context.Context, applicationID string, phase review.Phase, requesterEmail string) ([]review.ReviewView, error)
}

type Handler struct {
	service Service
	runner  *camunda.JobRunner
}

func NewHandler(config *Config, service Service, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		service: service,
		runner:  camunda.NewJobRunner(TaskType, config.Timeout, log, obs),
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
	views, err := h.service.GetReviews(ctx, input.ApplicationID, input.Phase, input.RequesterEmail)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []review.ReviewView{}
	}

	out := &Output{Reviews: views, ReviewCount: len(views)}
	for _, v := range views {
		if v.Own {
			out.OwnReviewed = true
			break
		}
	}
	return out, nil
}
