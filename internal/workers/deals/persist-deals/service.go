package persistdeals

import (
	"context"

	"deal-engine/internal/models"
)

// DealStore is the persistent deal table.
type DealStore interface {
	FindCandidates(ctx context.Context, ids, cities []string) ([]models.DealNormalized, error)
	Upsert(ctx context.Context, deals []models.DealNormalized) error
}

// FingerprintCache maps fingerprint hashes to the id of the stored deal.
type FingerprintCache interface {
	Lookup(ctx context.Context, hashes []string) (map[string]string, error)
	Store(ctx context.Context, deals []models.DealNormalized) (int, error)
}

// DealIndex is the search index deals are written to after storage.
type DealIndex interface {
	Index() string
	IndexDeals(ctx context.Context, deals []models.DealNormalized) (int, error)
}

// DealEvents announces persisted deals. Optional.
type DealEvents interface {
	PublishPersisted(ctx context.Context, deals []models.DealNormalized) (int, error)
}
