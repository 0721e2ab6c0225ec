// Package dealjob holds the job plumbing shared by the deal workers: variable
// parsing and schema validation, deal decoding, and job completion.
package dealjob

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/metrics"
	"deal-engine/internal/common/validation"
	"deal-engine/internal/models"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// Config is the per-worker runtime configuration.
type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	return nil
}

// ResolveConfig picks custom when set, otherwise overlays the workers.<name>
// section of appConfig on defaults.
func ResolveConfig(appConfig *config.Config, taskType string, defaults Config, custom *Config) *Config {
	if custom != nil {
		return custom
	}
	cfg := defaults
	if appConfig != nil {
		if workerCfg, exists := appConfig.Workers[taskType]; exists {
			cfg.Enabled = workerCfg.Enabled
			if workerCfg.MaxJobsActive > 0 {
				cfg.MaxJobsActive = workerCfg.MaxJobsActive
			}
			if workerCfg.Timeout > 0 {
				cfg.Timeout = time.Duration(workerCfg.Timeout) * time.Millisecond
			}
		}
	}
	return &cfg
}

// Runner carries what every deal handler needs to turn a job into input and
// an outcome back into a job command.
type Runner struct {
	TaskType string
	Logger   logger.Logger
	Schema   interface{}
	errors   *errors.ErrorHandler
}

// NewRunner builds a Runner for taskType. The registry input schema is used
// when the task is registered there, otherwise fallback.
func NewRunner(taskType string, log logger.Logger, reg *registry.ActivityRegistry, fallback validation.JSONSchema) *Runner {
	if log == nil {
		log = logger.NewStructured("info", "json")
	}
	var schema interface{} = fallback
	if s := reg.InputSchema(taskType); len(s) > 0 {
		schema = s
	}
	return &Runner{
		TaskType: taskType,
		Logger:   logger.ForTask(log, taskType),
		Schema:   schema,
		errors:   errors.NewErrorHandler(log),
	}
}

// Variables decodes the job variables and validates them against the input
// schema.
func (r *Runner) Variables(job entities.Job) (map[string]interface{}, error) {
	variables, err := job.GetVariablesAsMap()
	if err != nil {
		return nil, errors.NewInputParsingFailedError(err)
	}

	result := validation.ValidateInput(variables, r.Schema)
	if !result.Valid {
		return nil, errors.NewSchemaValidationFailedError(fmt.Sprintf("%v", result.GetErrorMessages()))
	}
	return variables, nil
}

// Complete sends output as the job's result variables.
func (r *Runner) Complete(ctx context.Context, client worker.JobClient, job entities.Job, output interface{}) {
	request, err := client.NewCompleteJobCommand().JobKey(job.GetKey()).VariablesFromObject(output)
	if err != nil {
		r.Logger.Error("Failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
		r.Fail(ctx, client, job, errors.NewInternalError(err))
		return
	}

	if _, err := request.Send(ctx); err != nil {
		r.Logger.Error("Failed to complete job", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err.Error(),
		})
	}
}

// Fail counts the failure and hands it to the BPMN error handler.
func (r *Runner) Fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := errors.AsStandardError(err)
	metrics.WorkerJobsFailed.WithLabelValues(r.TaskType, string(stdErr.Code)).Inc()
	r.errors.HandleJobError(ctx, client, job, stdErr)
}

// Track marks a job active and returns the function that records its end.
func (r *Runner) Track() func(completed bool) {
	start := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(r.TaskType).Inc()
	return func(completed bool) {
		metrics.WorkerJobsActive.WithLabelValues(r.TaskType).Dec()
		if completed {
			metrics.WorkerJobsCompleted.WithLabelValues(r.TaskType).Inc()
			metrics.WorkerJobDuration.WithLabelValues(r.TaskType).Observe(time.Since(start).Seconds())
		}
	}
}

// Open registers handler as the job worker for the runner's task type.
func (r *Runner) Open(client *camunda.Client, cfg *Config, rec camunda.Recorder, handler worker.JobHandler) worker.JobWorker {
	jobWorker := camunda.Open(client.GetClient(), camunda.WorkerOptions{
		TaskType:      r.TaskType,
		MaxJobsActive: cfg.MaxJobsActive,
		Timeout:       cfg.Timeout,
		Handler:       handler,
		Recorder:      rec,
	})
	r.Logger.Info("Worker registered with Camunda", map[string]interface{}{
		"maxJobsActive": cfg.MaxJobsActive,
		"timeout":       cfg.Timeout.String(),
	})
	return jobWorker
}

// DecodeDeal converts a job variable holding a normalized deal.
func DecodeDeal(v interface{}, field string) (models.DealNormalized, error) {
	var deal models.DealNormalized
	if _, ok := v.(map[string]interface{}); !ok {
		return deal, errors.NewInvalidDealPayloadError(field + ": expected an object")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return deal, errors.NewInvalidDealPayloadError(field + ": " + err.Error())
	}
	if err := json.Unmarshal(data, &deal); err != nil {
		return deal, errors.NewInvalidDealPayloadError(field + ": " + err.Error())
	}
	return deal, nil
}

// DecodeDeals converts a job variable holding a list of normalized deals.
func DecodeDeals(v interface{}, field string) ([]models.DealNormalized, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, errors.NewInvalidDealPayloadError(field + ": expected an array")
	}
	deals := make([]models.DealNormalized, 0, len(items))
	for i, item := range items {
		deal, err := DecodeDeal(item, fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	return deals, nil
}
