package initializephaseconfigs

import (
	"context"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/common/validation"
	"recruitment-review/internal/review"
	"recruitment-review/internal/workers/jobvars"
)

const TaskType = "initialize-phase-configs"

type Service interface {
	InitializeConfigs(ctx context.Context, cycleID string) ([]review.Phase, error)
}

type Input struct {
	CycleID string `json:"cycleId"`
}

type Output struct {
	// InitializedPhases lists only the phases created by this call.
	InitializedPhases []review.Phase `json:"initializedPhases"`
}

var inputSchema = validation.JSONSchema{
	Type:       "object",
	Properties: map[string]validation.Property{"cycleId": jobvars.CycleID},
	Required:   []string{"cycleId"},
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
		if err := camunda.ParseVariables(job, inputSchema, &input); err != nil {
			return nil, err
		}
		return h.Execute(ctx, &input)
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	created, err := h.service.InitializeConfigs(ctx, input.CycleID)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = []review.Phase{}
	}
	h.logger.Info("phase configs initialized", map[string]interface{}{
		"cycleId": input.CycleID,
		"created": len(created),
	})
	return &Output{InitializedPhases: created}, nil
}
