// internal/engine/aggregate/aggregate.go
package aggregate

import (
	"math"
	"sort"

	"deal-engine/internal/models"
)

// TrendingBucket is the width of the trust bands the trending ranking groups
// deals into before ordering each band by recency.
const TrendingBucket = 0.1

// Aggregate dedupes deals by blocking key, ranks them by trust and keeps at
// most limit entries. A limit of zero or less yields an empty result.
func Aggregate(deals []models.DealNormalized, limit int) []models.DealNormalized {
	return truncate(AggregateAll(deals), limit)
}

// AggregateAll is Aggregate without a limit.
func AggregateAll(deals []models.DealNormalized) []models.DealNormalized {
	out := Dedupe(deals)
	RankByTrust(out)
	return out
}

// AggregateTrending dedupes deals and ranks them trending-first.
func AggregateTrending(deals []models.DealNormalized, limit int) []models.DealNormalized {
	return truncate(AggregateAllTrending(deals), limit)
}

// AggregateAllTrending is AggregateTrending without a limit.
func AggregateAllTrending(deals []models.DealNormalized) []models.DealNormalized {
	out := Dedupe(deals)
	RankTrending(out)
	return out
}

// Dedupe keeps the first deal for each blocking key, in input order. Deals
// without a fingerprint are always kept. The input slice is not modified.
func Dedupe(deals []models.DealNormalized) []models.DealNormalized {
	out := make([]models.DealNormalized, 0, len(deals))
	seen := make(map[string]struct{}, len(deals))
	for _, d := range deals {
		if d.Fingerprint != nil {
			key := d.Fingerprint.BlockingKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, d)
	}
	return out
}

// RankByTrust sorts deals by trust, highest first, in place.
func RankByTrust(deals []models.DealNormalized) {
	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].Trust > deals[j].Trust
	})
}

// RankTrending sorts deals in place by trust band, highest first, then by
// discovery time, newest first. Equal keys keep their input order.
func RankTrending(deals []models.DealNormalized) {
	sort.SliceStable(deals, func(i, j int) bool {
		a, b := deals[i], deals[j]
		if ba, bb := trustBand(a.Trust), trustBand(b.Trust); ba != bb {
			return ba > bb
		}
		return a.DiscoveredAt.After(b.DiscoveredAt)
	})
}

// trustBand maps trust onto its TrendingBucket band. Scores carry two
// decimals, so rounding first keeps values like 0.7 out of the band below.
func trustBand(trust float64) int {
	return int(math.Floor(math.Round(trust*100) / (TrendingBucket * 100)))
}

func truncate(deals []models.DealNormalized, limit int) []models.DealNormalized {
	if limit <= 0 {
		return []models.DealNormalized{}
	}
	if len(deals) > limit {
		return deals[:limit]
	}
	return deals
}
