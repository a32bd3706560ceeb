package camunda

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/common/metrics"
	"recruitment-review/internal/common/observability"
	"recruitment-review/internal/common/validation"
)

// JobFunc does a worker's work and returns the variables to complete the job
// with.
type JobFunc func(ctx context.Context) (interface{}, error)

// JobRunner carries the lifecycle every job worker shares: metrics, timeout,
// span, completion and error handling.
type JobRunner struct {
	taskType string
	timeout  time.Duration
	logger   logger.Logger
	errors   *errors.ErrorHandler
	obs      *observability.Observability
}

func NewJobRunner(taskType string, timeout time.Duration, log logger.Logger, obs *observability.Observability) *JobRunner {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JobRunner{
		taskType: taskType,
		timeout:  timeout,
		logger:   log,
		errors:   errors.NewErrorHandler(log),
		obs:      obs,
	}
}

func (r *JobRunner) Run(client worker.JobClient, job entities.Job, fn JobFunc) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.taskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(r.taskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	ctx, span := r.obs.StartSpan(ctx, r.taskType,
		attribute.Int64("job.key", job.GetKey()),
		attribute.Int64("process.instance.key", job.GetProcessInstanceKey()),
	)
	defer span.End()

	r.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	output, err := fn(ctx)
	if err != nil {
		stdErr := errors.AsStandardError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stdErr.Code))
		metrics.WorkerJobsFailed.WithLabelValues(r.taskType, string(stdErr.Code)).Inc()
		r.obs.RecordJobProcessed(ctx, r.taskType, "failed")
		r.obs.RecordJobDuration(ctx, r.taskType, time.Since(startTime), "failed")
		r.errors.HandleJobError(ctx, client, job, stdErr)
		return
	}

	if err := r.complete(ctx, client, job, output); err != nil {
		span.RecordError(err)
		r.logger.Error("failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.taskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(r.taskType).Observe(time.Since(startTime).Seconds())
	r.obs.RecordJobProcessed(ctx, r.taskType, "completed")
	r.obs.RecordJobDuration(ctx, r.taskType, time.Since(startTime), "completed")
}

func (r *JobRunner) complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) error {
	cmd := client.NewCompleteJobCommand().JobKey(job.GetKey())
	if output == nil {
		_, err := cmd.Send(ctx)
		return err
	}
	withVars, err := cmd.VariablesFromObject(output)
	if err != nil {
		return err
	}
	_, err = withVars.Send(ctx)
	return err
}

// ParseVariables validates the job variables against schema and decodes them
// into dst.
func ParseVariables(job entities.Job, schema validation.JSONSchema, dst interface{}) error {
	raw := job.GetVariables()
	if raw == "" {
		raw = "{}"
	}

	result := validation.ValidateJSON(raw, schema)
	if !result.Valid {
		return errors.NewValidationErrorf("invalid job variables: %v", result.GetErrorMessages())
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return errors.NewInputParsingError(err)
	}
	return nil
}

// Register opens a job worker for taskType on the given client.
func Register(client JobWorkerFactory, taskType string, maxJobsActive int, timeout time.Duration, handler worker.JobHandler) worker.JobWorker {
	return client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(maxJobsActive).
		Timeout(timeout).
		Open()
}

// JobWorkerFactory is the part of zbc.Client Register needs.
type JobWorkerFactory interface {
	NewJobWorker() worker.JobWorkerBuilderStep1
}
