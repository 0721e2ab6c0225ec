package calculatetrustscore

import (
	"context"
	"fmt"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/engine/trust"
	"deal-engine/internal/workers/deals/dealjob"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "calculate-trust-score"

type Handler struct {
	config    *Config
	runner    *dealjob.Runner
	scorer    *trust.Scorer
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
	Scorer       *trust.Scorer
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := dealjob.ResolveConfig(opts.AppConfig, TaskType, *DefaultConfig(), opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Scorer == nil {
		return nil, fmt.Errorf("%s: trust scorer is required", TaskType)
	}

	return &Handler{
		config:   cfg,
		runner:   dealjob.NewRunner(TaskType, opts.Logger, opts.Registry, GetInputSchema()),
		scorer:   opts.Scorer,
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

	h.runner.Logger.Debug("Trust score calculated", map[string]interface{}{
		"jobKey": job.GetKey(),
		"dealId": input.Deal.ID,
		"trust":  output.Trust,
	})
	h.runner.Complete(ctx, client, job, output)
	done(true)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := h.runner.Variables(job)
	if err != nil {
		return nil, err
	}
	deal, err := dealjob.DecodeDeal(variables["deal"], "deal")
	if err != nil {
		return nil, err
	}
	return &Input{Deal: deal}, nil
}

// Execute scores the deal. The stored trust value on the input is ignored.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewQueryTimeoutError(TaskType)
	}
	factors := h.scorer.Breakdown(&input.Deal)
	return &Output{
		Trust:   factors.Total(),
		Factors: factors,
	}, nil
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
