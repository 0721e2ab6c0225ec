// internal/engine/dedup/resolver.go
package dedup

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"deal-engine/internal/models"
)

// Default matching thresholds.
const (
	DefaultSimilarityThreshold = 0.8
	DefaultSurfaceTolerance    = 0.2
	DefaultPriceTolerance      = 0.3
)

// MatchType tells how two deals were matched.
type MatchType string

const (
	MatchFingerprint MatchType = "fingerprint"
	MatchFuzzy       MatchType = "fuzzy"
	MatchNone        MatchType = "none"
)

// MatchResult is the outcome of comparing two deals.
type MatchResult struct {
	Duplicate bool      `json:"duplicate"`
	Type      MatchType `json:"type"`
	// Similarity is the address similarity, set for fuzzy comparisons.
	Similarity float64 `json:"similarity,omitempty"`
}

// Options configures a Resolver. Zero values fall back to the defaults.
type Options struct {
	SimilarityThreshold float64
	SurfaceTolerance    float64
	PriceTolerance      float64
	// NewID mints ids for appended deals whose id is missing or already taken.
	NewID func() string
}

// Resolver decides whether two deals describe the same property and merges
// them. The match relation is symmetric but not transitive: a~b and b~c do
// not imply a~c.
type Resolver struct {
	threshold  float64
	surfaceTol float64
	priceTol   float64
	newID      func() string
}

// New builds a Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		threshold:  opts.SimilarityThreshold,
		surfaceTol: opts.SurfaceTolerance,
		priceTol:   opts.PriceTolerance,
		newID:      opts.NewID,
	}
	if r.threshold <= 0 {
		r.threshold = DefaultSimilarityThreshold
	}
	if r.surfaceTol <= 0 {
		r.surfaceTol = DefaultSurfaceTolerance
	}
	if r.priceTol <= 0 {
		r.priceTol = DefaultPriceTolerance
	}
	if r.newID == nil {
		r.newID = func() string { return uuid.New().String() }
	}
	return r
}

// AreDuplicates reports whether a and b are the same property.
func (r *Resolver) AreDuplicates(a, b *models.DealNormalized) bool {
	return r.Match(a, b).Duplicate
}

// Match compares a and b: equal fingerprint hashes match outright, otherwise
// the addresses must be similar and surface and price within tolerance.
func (r *Resolver) Match(a, b *models.DealNormalized) MatchResult {
	if a == nil || b == nil {
		return MatchResult{Type: MatchNone}
	}
	if a.Fingerprint != nil && b.Fingerprint != nil && a.Fingerprint.Hash == b.Fingerprint.Hash {
		return MatchResult{Duplicate: true, Type: MatchFingerprint}
	}

	res := MatchResult{Type: MatchNone, Similarity: Similarity(a.Address, b.Address)}
	if AddressesSimilar(a.Address, b.Address, r.threshold) &&
		WithinTolerance(a.Surface, b.Surface, r.surfaceTol) &&
		WithinTolerance(a.PriceAsk, b.PriceAsk, r.priceTol) {
		res.Duplicate = true
		res.Type = MatchFuzzy
	}
	return res
}

// MergeDuplicates returns a new deal based on a with b overlaid. Neither
// input is modified.
func (r *Resolver) MergeDuplicates(a, b *models.DealNormalized) models.DealNormalized {
	if a == nil && b == nil {
		return models.DealNormalized{}
	}
	if a == nil {
		return b.Clone()
	}
	out := a.Clone()
	if b == nil {
		return out
	}

	out.Source = mergeSources(a.Source, b.Source)
	out.UpdatedAt = laterOf(a.UpdatedAt, b.UpdatedAt)
	out.DiscoveredAt = earlierOf(a.DiscoveredAt, b.DiscoveredAt)
	out.Trust = max(a.Trust, b.Trust)
	out.Surface = preferLarger(out.Surface, b.Surface)
	out.PriceAsk = preferLarger(out.PriceAsk, b.PriceAsk)

	if len(b.Metadata) > 0 {
		if out.Metadata == nil {
			out.Metadata = make(map[string]interface{}, len(b.Metadata))
		}
		for k, v := range b.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func mergeSources(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case b == "":
		return a
	case a == "":
		return b
	case strings.Contains(a, b):
		return a
	}
	return a + "," + b
}

// preferLarger keeps b when it is set and greater than a. An absent a counts
// as zero.
func preferLarger(a, b *float64) *float64 {
	if b == nil {
		return a
	}
	if a == nil || *b > *a {
		v := *b
		return &v
	}
	return a
}

func laterOf(a, b time.Time) time.Time {
	if a.IsZero() || b.After(a) {
		return b
	}
	return a
}

func earlierOf(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if !b.IsZero() && b.Before(a) {
		return b
	}
	return a
}
