package getphaseconfig

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

const TaskType = "get-phase-config"

type Service interface {
	GetConfig(ctx context.Context, cycleID string, phase review.Phase, track string) (*review.PhaseConfig, error)
}

type Output struct {
	PhaseConfig    *review.PhaseConfig `json:"phaseConfig"`
	PhaseFinalized bool                `json:"phaseFinalized"`
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
		var input jobvars.PhaseRef
		if err := camunda.ParseVariables(job, jobvars.PhaseScoped(), &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *jobvars.PhaseRef) (*Output, error) {
	cfg, err := h.service.GetConfig(ctx, input.CycleID, input.Phase, input.Track)
	if err != nil {
		return nil, err
	}
	return &Output{PhaseConfig: cfg, PhaseFinalized: cfg.Finalized()}, nil
}
