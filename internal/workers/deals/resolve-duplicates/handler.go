package resolveduplicates

import (
	"context"
	"fmt"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/metrics"
	"deal-engine/internal/engine/dedup"
	"deal-engine/internal/workers/deals/dealjob"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "resolve-duplicates"

type Handler struct {
	config    *Config
	runner    *dealjob.Runner
	resolver  *dedup.Resolver
	camunda   *camunda.Client
	recorder  camunda.Recorder
	jobWorker worker.JobWorker
}

type HandlerOptions struct {
	AppConfig    *config.Config
	CustomConfig *Config
	Camunda      *camunda.Client
	Recorder     camunda.Recorder
	Registry     *registry.ActivityRegistry
	Resolver     *dedup.Resolver
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := dealjob.ResolveConfig(opts.AppConfig, TaskType, *DefaultConfig(), opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("%s: duplicate resolver is required", TaskType)
	}

	return &Handler{
		config:   cfg,
		runner:   dealjob.NewRunner(TaskType, opts.Logger, opts.Registry, GetInputSchema()),
		resolver: opts.Resolver,
		camunda:  opts.Camunda,
		recorder: opts.Recorder,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := h.runner.Track()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := h.parseInput(job)
	if err != nil {
		done(false)
		h.runner.Fail(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		done(false)
		h.runner.Fail(ctx, client, job, err)
		return
	}

	h.runner.Logger.Info("Duplicate check finished", map[string]interface{}{
		"jobKey":     job.GetKey(),
		"a":          input.A.ID,
		"b":          input.B.ID,
		"duplicates": output.Duplicates,
		"matchType":  output.MatchType,
	})
	h.runner.Complete(ctx, client, job, output)
	done(true)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := h.runner.Variables(job)
	if err != nil {
		return nil, err
	}
	a, err := dealjob.DecodeDeal(variables["a"], "a")
	if err != nil {
		return nil, err
	}
	b, err := dealjob.DecodeDeal(variables["b"], "b")
	if err != nil {
		return nil, err
	}
	return &Input{A: a, B: b}, nil
}

// Execute compares the two deals and merges b into a when they match.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewQueryTimeoutError(TaskType)
	}

	match := h.resolver.Match(&input.A, &input.B)
	output := &Output{
		Duplicates: match.Duplicate,
		MatchType:  match.Type,
		Similarity: match.Similarity,
	}
	if match.Duplicate {
		merged := h.resolver.MergeDuplicates(&input.A, &input.B)
		output.Merged = &merged
	}
	metrics.DealDuplicates.WithLabelValues(string(match.Type)).Inc()
	return output, nil
}

func (h *Handler) Register() error {
	if !h.config.Enabled {
		h.runner.Logger.Info("Worker is disabled, skipping registration", nil)
		return nil
	}
	if h.camunda == nil {
		return fmt.Errorf("%s: camunda client is required to register", TaskType)
	}
	h.jobWorker = h.runner.Open(h.camunda, h.config, h.recorder, h.Handle)
	return nil
}

func (h *Handler) Close() {
	if h.jobWorker != nil {
		h.runner.Logger.Info("Shutting down worker gracefully", nil)
		h.jobWorker.Close()
		h.jobWorker = nil
	}
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}

func (h *Handler) GetConfig() *Config {
	return h.config
}
