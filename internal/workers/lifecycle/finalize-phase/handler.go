package finalizephase

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

const TaskType = "finalize-phase"

type Service interface {
	FinalizePhase(ctx context.Context, cycleID string, phase review.Phase) (*review.PhaseConfig, error)
}

type Output struct {
	PhaseStatus        review.PhaseStatus `json:"phaseStatus"`
	PhaseConfigVersion int64              `json:"phaseConfigVersion"`
	CutoffAppliedAt    *time.Time         `json:"cutoffAppliedAt"`
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
		var input jobvars.PhaseRef
		if err := camunda.ParseVariables(job, jobvars.PhaseScoped(), &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *jobvars.PhaseRef) (*Output, error) {
	cfg, err := h.service.FinalizePhase(ctx, input.CycleID, input.Phase)
	if err != nil {
		return nil, err
	}
	h.logger.Info("phase finalized", map[string]interface{}{
		"cycleId": cfg.CycleID,
		"phase":   string(cfg.Phase),
	})
	return &Output{
		PhaseStatus:        cfg.Status,
		PhaseConfigVersion: cfg.Version,
		CutoffAppliedAt:    cfg.CutoffAppliedAt,
	}, nil
}
