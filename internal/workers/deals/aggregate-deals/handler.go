package aggregatedeals

import (
	"context"
	"fmt"
	"math"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/metrics"
	"deal-engine/internal/engine"
	"deal-engine/internal/engine/aggregate"
	"deal-engine/internal/models"
	"deal-engine/internal/workers/deals/dealjob"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "aggregate-deals"

type Handler struct {
	config    *Config
	runner    *dealjob.Runner
	engine    *engine.Engine
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
	Engine       *engine.Engine
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := dealjob.ResolveConfig(opts.AppConfig, TaskType, *DefaultConfig(), opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("%s: engine is required", TaskType)
	}

	return &Handler{
		config:   cfg,
		runner:   dealjob.NewRunner(TaskType, opts.Logger, opts.Registry, GetInputSchema()),
		engine:   opts.Engine,
		camunda:  opts.Camunda,
		recorder: opts.Recorder,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := h.runner.Track()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.runner.Logger.Info("Aggregating deals", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

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

	h.runner.Complete(ctx, client, job, output)
	done(true)
}

func (h *Handler) parseInput(job entities.Job) (*Input, error) {
	variables, err := h.runner.Variables(job)
	if err != nil {
		return nil, err
	}

	deals, err := dealjob.DecodeDeals(variables["deals"], "deals")
	if err != nil {
		return nil, err
	}
	input := &Input{Deals: deals}

	if raw, ok := variables["limit"]; ok && raw != nil {
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return nil, errors.NewInvalidDealPayloadError(fmt.Sprintf("limit: expected an integer, got %v", raw))
		}
		limit := int(f)
		input.Limit = &limit
	}
	if ranking, ok := variables["ranking"].(string); ok {
		input.Ranking = engine.Ranking(ranking)
	}
	return input, nil
}

// Execute dedupes and ranks the deals. An omitted ranking means trust; an
// omitted limit uses the engine default, and no default means no limit.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewQueryTimeoutError(TaskType)
	}

	ranking := input.Ranking
	if ranking == "" {
		ranking = engine.RankingTrust
	}
	if !ranking.Valid() {
		return nil, errors.NewInvalidRankingModeError(string(ranking))
	}

	var result []models.DealNormalized
	switch {
	case input.Limit != nil && *input.Limit <= 0:
		return nil, errors.NewInvalidLimitError(*input.Limit)
	case input.Limit != nil:
		result = h.engine.Aggregate(input.Deals, ranking, *input.Limit)
	case h.engine.DefaultLimit > 0:
		result = h.engine.Aggregate(input.Deals, ranking, h.engine.DefaultLimit)
	case ranking == engine.RankingTrending:
		result = aggregate.AggregateAllTrending(input.Deals)
	default:
		result = aggregate.AggregateAll(input.Deals)
	}

	output := &Output{
		Deals:       result,
		InputCount:  len(input.Deals),
		OutputCount: len(result),
	}
	output.RemovedCount = output.InputCount - output.OutputCount
	metrics.DealAggregationRemoved.Add(float64(output.RemovedCount))

	h.runner.Logger.Info("Deals aggregated", map[string]interface{}{
		"ranking": string(ranking),
		"input":   output.InputCount,
		"output":  output.OutputCount,
		"removed": output.RemovedCount,
	})
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
