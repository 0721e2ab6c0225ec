package aggregatedeals

import (
	"deal-engine/internal/engine"
	"deal-engine/internal/models"
)

type Input struct {
	Deals []models.DealNormalized `json:"deals"`
	// Limit is nil when the job omits it; the configured default applies.
	Limit   *int           `json:"limit,omitempty"`
	Ranking engine.Ranking `json:"ranking,omitempty"`
}

type Output struct {
	Deals        []models.DealNormalized `json:"deals"`
	InputCount   int                     `json:"inputCount"`
	OutputCount  int                     `json:"outputCount"`
	RemovedCount int                     `json:"removedCount"`
}
