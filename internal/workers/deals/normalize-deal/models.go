package normalizedeal

import "deal-engine/internal/models"

type Input struct {
	Deals []interface{} `json:"deals"`
}

// Rejection reports a raw record that could not be normalized.
type Rejection struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type Output struct {
	Deals           []models.DealNormalized `json:"deals"`
	Rejected        []Rejection             `json:"rejected"`
	NormalizedCount int                     `json:"normalizedCount"`
	RejectedCount   int                     `json:"rejectedCount"`
}
