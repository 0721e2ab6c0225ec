// internal/engine/engine.go
package engine

import (
	"time"

	"deal-engine/internal/common/config"
	"deal-engine/internal/engine/aggregate"
	"deal-engine/internal/engine/coercion"
	"deal-engine/internal/engine/dedup"
	"deal-engine/internal/engine/normalize"
	"deal-engine/internal/engine/trust"
	"deal-engine/internal/models"
)

// Ranking selects the aggregation order.
type Ranking string

const (
	RankingTrust    Ranking = "trust"
	RankingTrending Ranking = "trending"
)

// Valid reports whether r is a known ranking.
func (r Ranking) Valid() bool {
	return r == RankingTrust || r == RankingTrending
}

// Engine bundles the configured deal engine components. All of them are
// stateless and safe for concurrent use.
type Engine struct {
	Coercer      *coercion.Coercer
	Scorer       *trust.Scorer
	Pipeline     *normalize.Pipeline
	Resolver     *dedup.Resolver
	DefaultLimit int
}

// Options overrides the engine clock and id generator, mostly for tests.
type Options struct {
	Now   func() time.Time
	NewID func() string
}

// New builds an Engine from the engine configuration section. Catalog
// entries missing from cfg fall back to the built-in defaults.
func New(cfg config.EngineConfig, opts Options) *Engine {
	coercer := coercion.New(Catalog(cfg))
	scorer := trust.NewScorer(trust.Config{
		SourceReliability:  cfg.SourceReliability,
		DefaultReliability: cfg.DefaultReliability,
		Now:                opts.Now,
	})
	return &Engine{
		Coercer: coercer,
		Scorer:  scorer,
		Pipeline: normalize.New(normalize.Options{
			Coercer: coercer,
			Scorer:  scorer,
			Now:     opts.Now,
			NewID:   opts.NewID,
		}),
		Resolver: dedup.New(dedup.Options{
			SimilarityThreshold: cfg.SimilarityThreshold,
			SurfaceTolerance:    cfg.SurfaceTolerance,
			PriceTolerance:      cfg.PriceTolerance,
		}),
		DefaultLimit: cfg.DefaultLimit,
	}
}

// Default builds an Engine over the built-in catalog.
func Default() *Engine {
	return New(config.EngineConfig{}, Options{})
}

// Catalog converts the engine configuration into a coercion catalog merged
// over the defaults.
func Catalog(cfg config.EngineConfig) coercion.Catalog {
	override := coercion.Catalog{
		Cities:      cfg.Cities,
		UnknownCity: cfg.UnknownCity,
	}
	for _, rule := range cfg.Zoning {
		override.Zoning = append(override.Zoning, coercion.ZoningRule{
			Category: models.Zoning(rule.Category),
			Keywords: rule.Keywords,
		})
	}
	return coercion.DefaultCatalog().Merge(override)
}

// Aggregate dedupes and ranks deals with the given ranking and limit.
func (e *Engine) Aggregate(deals []models.DealNormalized, ranking Ranking, limit int) []models.DealNormalized {
	if ranking == RankingTrending {
		return aggregate.AggregateTrending(deals, limit)
	}
	return aggregate.Aggregate(deals, limit)
}
