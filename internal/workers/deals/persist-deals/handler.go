package persistdeals

import (
	"context"
	"fmt"

	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/engine/dedup"
	"deal-engine/internal/models"
	"deal-engine/internal/workers/deals/dealjob"
	"deal-engine/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "persist-deals"

type Handler struct {
	config    *Config
	runner    *dealjob.Runner
	resolver  *dedup.Resolver
	store     DealStore
	cache     FingerprintCache
	index     DealIndex
	events    DealEvents
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
	Store        DealStore
	Cache        FingerprintCache
	Index        DealIndex
	Events       DealEvents
	Logger       logger.Logger
}

func NewHandler(opts HandlerOptions) (*Handler, error) {
	cfg := dealjob.ResolveConfig(opts.AppConfig, TaskType, *DefaultConfig(), opts.CustomConfig)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	switch {
	case opts.Resolver == nil:
		return nil, fmt.Errorf("%s: duplicate resolver is required", TaskType)
	case opts.Store == nil:
		return nil, fmt.Errorf("%s: deal store is required", TaskType)
	case opts.Cache == nil:
		return nil, fmt.Errorf("%s: fingerprint cache is required", TaskType)
	case opts.Index == nil:
		return nil, fmt.Errorf("%s: deal index is required", TaskType)
	}

	return &Handler{
		config:   cfg,
		runner:   dealjob.NewRunner(TaskType, opts.Logger, opts.Registry, GetInputSchema()),
		resolver: opts.Resolver,
		store:    opts.Store,
		cache:    opts.Cache,
		index:    opts.Index,
		events:   opts.Events,
		camunda:  opts.Camunda,
		recorder: opts.Recorder,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	done := h.runner.Track()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.runner.Logger.Info("Persisting deals", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
		"retries":            job.GetRetries(),
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
	return &Input{Deals: deals}, nil
}

// Execute merges the incoming deals into the stored ones. Candidates are the
// stored deals whose id is known to the fingerprint cache or given on an
// incoming deal, plus those in the same cities. Only merged and added deals
// are written, indexed and cached.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	output := &Output{Deals: []models.DealNormalized{}}
	if len(input.Deals) == 0 {
		return output, nil
	}

	known, err := h.cache.Lookup(ctx, fingerprintHashes(input.Deals))
	if err != nil {
		return nil, errors.NewFingerprintCacheFailedError(err)
	}

	ids, cities := candidateKeys(input.Deals, known)
	existing, err := h.store.FindCandidates(ctx, ids, cities)
	if err != nil {
		return nil, storeError(ctx, "find candidates", err)
	}

	res := h.resolver.Reconcile(existing, input.Deals)
	changed := make([]models.DealNormalized, 0, len(res.Changed))
	for _, i := range res.Changed {
		changed = append(changed, res.Deals[i])
	}

	if err := h.store.Upsert(ctx, changed); err != nil {
		return nil, storeError(ctx, "upsert", err)
	}

	indexed, err := h.index.IndexDeals(ctx, changed)
	if err != nil {
		return nil, errors.NewDealIndexFailedError(h.index.Index(), err)
	}

	cached, err := h.cache.Store(ctx, changed)
	if err != nil {
		// Stored rows are still found through the city lookup next time.
		h.runner.Logger.Warn("Failed to refresh fingerprint cache", map[string]interface{}{
			"error": err.Error(),
			"deals": len(changed),
		})
	}

	if h.events != nil && len(changed) > 0 {
		published, err := h.events.PublishPersisted(ctx, changed)
		if err != nil {
			h.runner.Logger.Warn("Failed to publish persisted deals", map[string]interface{}{
				"error":     err.Error(),
				"published": published,
				"deals":     len(changed),
			})
		}
		output.PublishedCount = published
	}

	output.StoredCount = len(changed)
	output.MergedCount = res.Merged
	output.AddedCount = res.Added
	output.IndexedCount = indexed
	output.CachedCount = cached
	output.Deals = changed

	h.runner.Logger.Info("Deals persisted", map[string]interface{}{
		"candidates": len(existing),
		"stored":     output.StoredCount,
		"merged":     output.MergedCount,
		"added":      output.AddedCount,
		"indexed":    output.IndexedCount,
		"cached":     output.CachedCount,
		"published":  output.PublishedCount,
	})
	return output, nil
}

func storeError(ctx context.Context, operation string, err error) error {
	if ctx.Err() != nil {
		return errors.NewQueryTimeoutError(operation)
	}
	return errors.NewDealStoreFailedError(operation, err)
}

func fingerprintHashes(deals []models.DealNormalized) []string {
	var hashes []string
	seen := make(map[string]bool)
	for _, d := range deals {
		if d.Fingerprint == nil || d.Fingerprint.Sentinel || d.Fingerprint.Hash == "" {
			continue
		}
		if !seen[d.Fingerprint.Hash] {
			seen[d.Fingerprint.Hash] = true
			hashes = append(hashes, d.Fingerprint.Hash)
		}
	}
	return hashes
}

func candidateKeys(deals []models.DealNormalized, known map[string]string) (ids, cities []string) {
	ids = []string{}
	cities = []string{}
	seenID := make(map[string]bool)
	seenCity := make(map[string]bool)
	addID := func(id string) {
		if id != "" && !seenID[id] {
			seenID[id] = true
			ids = append(ids, id)
		}
	}

	for _, d := range deals {
		if d.Fingerprint != nil {
			addID(known[d.Fingerprint.Hash])
		}
		addID(d.ID)
		if d.City != "" && !seenCity[d.City] {
			seenCity[d.City] = true
			cities = append(cities, d.City)
		}
	}
	return ids, cities
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
