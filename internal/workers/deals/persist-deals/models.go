package persistdeals

import "deal-engine/internal/models"

type Input struct {
	Deals []models.DealNormalized `json:"deals"`
}

type Output struct {
	// StoredCount is the number of rows written; merged and added deals only.
	StoredCount  int `json:"storedCount"`
	MergedCount  int `json:"mergedCount"`
	AddedCount   int `json:"addedCount"`
	IndexedCount int `json:"indexedCount"`
	CachedCount  int `json:"cachedCount"`

	// PublishedCount stays zero when no event topic is configured.
	PublishedCount int                     `json:"publishedCount"`
	Deals          []models.DealNormalized `json:"deals"`
}
