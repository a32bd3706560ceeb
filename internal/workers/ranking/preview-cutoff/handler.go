package previewcutoff

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

const TaskType = "preview-cutoff"

type Service interface {
	PreviewCutoff(ctx context.Context, req review.CutoffRequest) (*review.CutoffPreview, error)
}

type Output struct {
	CutoffPreview *review.CutoffPreview `json:"cutoffPreview"`
	// CutoffBlocked mirrors CutoffPreview.Blocked for gateway conditions.
	CutoffBlocked bool `json:"cutoffBlocked"`
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
		var input jobvars.CutoffInput
		if err := camunda.ParseVariables(job, jobvars.CutoffSchema(false), &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *jobvars.CutoffInput) (*Output, error) {
	preview, err := h.service.PreviewCutoff(ctx, input.Request())
	if err != nil {
		return nil, err
	}
	return &Output{CutoffPreview: preview, CutoffBlocked: preview.Blocked}, nil
}
