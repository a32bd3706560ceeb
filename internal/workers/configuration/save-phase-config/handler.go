package savephaseconfig

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/review"
)

const TaskType = "save-phase-config"

type Service interface {
	SaveConfig(ctx context.Context, req review.SaveConfigRequest) (*review.PhaseConfig, error)
}

type Handler struct {
	service Service
	logger  logger.Logger
	runner  *camunda.JobRunner
}

func NewHandler(config *Config, service Service, log logger.Logger, obs *observability.Observability) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		service: service,
		logger:  log,
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
	cfg, err := h.service.SaveConfig(ctx, input.SaveConfigRequest)
	if err != nil {
		return nil, err
	}
	h.logger.Info("phase config saved", map[string]interface{}{
		"cycleId": cfg.CycleID,
		"phase":   string(cfg.Phase),
		"version": cfg.Version,
	})
	return &Output{PhaseConfig: cfg, PhaseConfigVersion: cfg.Version}, nil
}
