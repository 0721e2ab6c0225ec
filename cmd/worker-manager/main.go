// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"deal-engine/internal/common/aws"
	"deal-engine/internal/common/camunda"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/database"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/observability"
	"deal-engine/internal/engine"
	"deal-engine/internal/repository"
	"deal-engine/pkg/registry"

	ad "deal-engine/internal/workers/deals/aggregate-deals"
	cts "deal-engine/internal/workers/deals/calculate-trust-score"
	nd "deal-engine/internal/workers/deals/normalize-deal"
	pd "deal-engine/internal/workers/deals/persist-deals"
	rd "deal-engine/internal/workers/deals/resolve-duplicates"
)

// dealWorker is the lifecycle shared by every deal job handler.
type dealWorker interface {
	Register() error
	Close()
	GetTaskType() string
	IsEnabled() bool
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	bootLog := logger.New("info", "console")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting deal engine worker manager",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs, err := observability.New(cfg.App.Name, prometheus.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}
	defer func() {
		if err := obs.Shutdown(); err != nil {
			zapLog.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(camunda.ConfigFromApp(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Elasticsearch ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch, nil)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Redis ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error {
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Repositories ---
	store := repository.NewDealStore(pg.DB, repository.DefaultCandidateLimit)
	if err := store.Migrate(ctx); err != nil {
		zapLog.Fatal("deal table migration failed", zap.Error(err))
	}
	index := repository.NewDealIndex(esClient.Client, cfg.Search.Index)
	if err := index.EnsureIndex(ctx); err != nil {
		zapLog.Fatal("deal index setup failed", zap.Error(err), zap.String("index", cfg.Search.Index))
	}
	cache := repository.NewFingerprintCache(redis.Client, cfg.Cache.KeyPrefix, cfg.Cache.TTL())

	var events pd.DealEvents
	if cfg.Events.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Events.Region)
		if err != nil {
			zapLog.Fatal("sns client init failed", zap.Error(err))
		}
		events = repository.NewDealEvents(snsClient, cfg.Events.TopicARN)
		zapLog.Info("Publishing persisted deals", zap.String("topic", cfg.Events.TopicARN))
	}

	reg, err := registry.LoadRegistry(cfg.Registry.Path)
	if err != nil {
		zapLog.Warn("activity registry unavailable, using built-in input schemas",
			zap.Error(err), zap.String("path", cfg.Registry.Path))
		reg = nil
	}

	eng := engine.New(cfg.Engine, engine.Options{})

	// --- Workers ---
	workers, err := buildWorkers(cfg, zeebe, obs, reg, eng, store, cache, index, events, log)
	if err != nil {
		zapLog.Fatal("worker setup failed", zap.Error(err))
	}
	registered := 0
	for _, w := range workers {
		if err := w.Register(); err != nil {
			zapLog.Fatal("worker registration failed", zap.String("taskType", w.GetTaskType()), zap.Error(err))
		}
		if w.IsEnabled() {
			registered++
		}
	}
	zapLog.Info("Deal workers registered", zap.Int("registered", registered), zap.Int("total", len(workers)))

	// --- Health & Metrics Server ---
	srv := newServer(cfg.Server.Address, map[string]database.Pinger{
		"postgres":      pg,
		"redis":         redis,
		"elasticsearch": esClient,
		"zeebe":         pingFunc(zeebe.HealthCheck),
	}, nil, log)
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func buildWorkers(
	cfg *config.Config,
	zeebe *camunda.Client,
	rec camunda.Recorder,
	reg *registry.ActivityRegistry,
	eng *engine.Engine,
	store pd.DealStore,
	cache pd.FingerprintCache,
	index pd.DealIndex,
	events pd.DealEvents,
	log logger.Logger,
) ([]dealWorker, error) {
	var workers []dealWorker

	normalize, err := nd.NewHandler(nd.HandlerOptions{
		AppConfig: cfg, Camunda: zeebe, Recorder: rec, Registry: reg,
		Pipeline: eng.Pipeline, Logger: log,
	})
	if err != nil {
		return nil, err
	}
	workers = append(workers, normalize)

	score, err := cts.NewHandler(cts.HandlerOptions{
		AppConfig: cfg, Camunda: zeebe, Recorder: rec, Registry: reg,
		Scorer: eng.Scorer, Logger: log,
	})
	if err != nil {
		return nil, err
	}
	workers = append(workers, score)

	resolve, err := rd.NewHandler(rd.HandlerOptions{
		AppConfig: cfg, Camunda: zeebe, Recorder: rec, Registry: reg,
		Resolver: eng.Resolver, Logger: log,
	})
	if err != nil {
		return nil, err
	}
	workers = append(workers, resolve)

	aggregate, err := ad.NewHandler(ad.HandlerOptions{
		AppConfig: cfg, Camunda: zeebe, Recorder: rec, Registry: reg,
		Engine: eng, Logger: log,
	})
	if err != nil {
		return nil, err
	}
	workers = append(workers, aggregate)

	persist, err := pd.NewHandler(pd.HandlerOptions{
		AppConfig: cfg, Camunda: zeebe, Recorder: rec, Registry: reg,
		Resolver: eng.Resolver, Store: store, Cache: cache, Index: index, Events: events, Logger: log,
	})
	if err != nil {
		return nil, err
	}
	workers = append(workers, persist)

	return workers, nil
}
