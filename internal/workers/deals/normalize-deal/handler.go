package normalizedeal

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/metrics"
	"deal-engine/internal/engine/normalize"
	"deal-engine/internal/models"
	"deal-engine/internal/workers/deals/dealjob"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "normalize-deal"

type Handler struct {
	config    *Config
	runner    *dealjob.Runner
	pipeline  *normalize.Pipeline
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
	Pipeline     *normalize.Pipeline
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := dealjob.ResolveConfig(opts.AppConfig, TaskType, *DefaultConfig(), opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("%s: normalization pipeline is required", TaskType)
	}

	return &Handler{
		config:   cfg,
		runner:   dealjob.NewRunner(TaskType, opts.Logger, opts.Registry, GetInputSchema()),
		pipeline: opts.Pipeline,
		camunda:  opts.Camunda,
		recorder: opts.Recorder,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := h.runner.Track()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.runner.Logger.Info("Normalizing deals", map[string]interface{}{
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
	deals, ok := variables["deals"].([]interface{})
	if !ok {
		return nil, errors.NewInvalidDealPayloadError("deals: expected an array")
	}
	return &Input{Deals: deals}, nil
}

// Execute normalizes every raw record. Records that cannot be normalized are
// reported in Rejected with their position in the input.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	output := &Output{
		Deals:    make([]models.DealNormalized, 0, len(input.Deals)),
		Rejected: []Rejection{},
	}

	for i, item := range input.Deals {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewQueryTimeoutError(TaskType)
		}

		raw, ok := item.(map[string]interface{})
		if !ok {
			h.reject(output, i, normalize.ErrNotAnObject)
			continue
		}

		deal, err := h.pipeline.NormalizeDeal(models.DealRaw(raw))
		if err != nil {
			h.reject(output, i, err)
			continue
		}
		output.Deals = append(output.Deals, *deal)
		metrics.DealsNormalized.WithLabelValues(h.sourceLabel(deal.Source)).Inc()
	}

	output.NormalizedCount = len(output.Deals)
	output.RejectedCount = len(output.Rejected)

	h.runner.Logger.Info("Deals normalized", map[string]interface{}{
		"normalized": output.NormalizedCount,
		"rejected":   output.RejectedCount,
	})
	return output, nil
}

func (h *Handler) reject(output *Output, index int, err error) {
	output.Rejected = append(output.Rejected, Rejection{Index: index, Reason: err.Error()})
	metrics.DealsRejected.WithLabelValues(rejectionLabel(err)).Inc()
}

func rejectionLabel(err error) string {
	switch {
	case stderrors.Is(err, normalize.ErrNotAnObject):
		return "not_an_object"
	case stderrors.Is(err, normalize.ErrNoLocation):
		return "no_location"
	default:
		return "other"
	}
}

// sourceLabel keeps the metric label set bounded: sources outside the
// reliability table collapse into "other".
func (h *Handler) sourceLabel(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	switch {
	case source == "":
		return "unknown"
	case h.pipeline.KnownSource(source):
		return source
	default:
		return "other"
	}
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
