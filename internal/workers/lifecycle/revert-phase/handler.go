package revertphase

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

const TaskType = "revert-phase"

type Service interface {
	RevertPhase(ctx context.Context, cycleID string, phase review.Phase) (*review.RevertResult, error)
}

type Output struct {
	RevertedCutoffID string               `json:"revertedCutoffId"`
	RestoredCount    int                  `json:"restoredCount"`
	SkippedCount     int                  `json:"skippedCount"`
	Skipped          []review.StageChange `json:"skipped"`
	PhaseStatus      review.PhaseStatus   `json:"phaseStatus"`
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
	res, err := h.service.RevertPhase(ctx, input.CycleID, input.Phase)
	if err != nil {
		return nil, err
	}

	skipped := res.Skipped
	if skipped == nil {
		skipped = []review.StageChange{}
	}
	if len(skipped) > 0 {
		h.logger.Warn("revert skipped applicants that moved after the cutoff", map[string]interface{}{
			"cutoffId": res.CutoffID,
			"skipped":  len(skipped),
		})
	}

	out := &Output{
		RevertedCutoffID: res.CutoffID,
		RestoredCount:    len(res.Restored),
		SkippedCount:     len(skipped),
		Skipped:          skipped,
	}
	if res.Config != nil {
		out.PhaseStatus = res.Config.Status
	}
	return out, nil
}
