package resolveduplicates

import (
	"deal-engine/internal/engine/dedup"
	"deal-engine/internal/models"
)

type Input struct {
	A models.DealNormalized `json:"a"`
	B models.DealNormalized `json:"b"`
}

type Output struct {
	Duplicates bool            `json:"duplicates"`
	MatchType  dedup.MatchType `json:"matchType"`
	Similarity float64         `json:"similarity"`
	// Merged is set only when the deals are duplicates.
	Merged *models.DealNormalized `json:"merged,omitempty"`
}
