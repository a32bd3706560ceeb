package applycutoff

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

const TaskType = "apply-cutoff"

type Service interface {
	ApplyCutoff(ctx context.Context, req review.CutoffRequest) (*review.CutoffRecord, error)
}

type Output struct {
	CutoffID       string            `json:"cutoffId"`
	AdvancedCount  int               `json:"advancedCount"`
	RejectedCount  int               `json:"rejectedCount"`
	PhaseFinalized bool              `json:"phaseFinalized"`
	Decisions      []review.Decision `json:"decisions"`
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
		var input jobvars.CutoffInput
		if err := camunda.ParseVariables(job, jobvars.CutoffSchema(true), &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *jobvars.CutoffInput) (*Output, error) {
	rec, err := h.service.ApplyCutoff(ctx, input.Request())
	if err != nil {
		return nil, err
	}

	advanced, rejected := rec.Counts()
	h.logger.Info("cutoff applied", map[string]interface{}{
		"cutoffId":  rec.ID,
		"cycleId":   rec.CycleID,
		"phase":     string(rec.Phase),
		"advanced":  advanced,
		"rejected":  rejected,
		"finalized": rec.Finalized,
		"appliedBy": rec.AppliedBy,
	})
	return &Output{
		CutoffID:       rec.ID,
		AdvancedCount:  advanced,
		RejectedCount:  rejected,
		PhaseFinalized: rec.Finalized,
		Decisions:      rec.Decisions,
	}, nil
}
