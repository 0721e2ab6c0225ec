// internal/engine/trust/scorer.go
package trust

import (
	"math"
	"strings"
	"time"

	"deal-engine/internal/models"
)

// Factor weights. They sum to 1.0.
const (
	WeightSourceReliability = 0.3
	WeightCompleteness      = 0.3
	WeightFreshness         = 0.2
	WeightCrossSource       = 0.2
)

// DefaultReliability is used for sources missing from the table.
const DefaultReliability = 0.5

// completenessFields is the number of fields checked by completeness.
const completenessFields = 7

// DefaultSourceReliability returns the built-in reliability table.
func DefaultSourceReliability() map[string]float64 {
	return map[string]float64{
		"astegiudiziarie": 0.9,
		"tribunale":       0.9,
		"immobiliare":     0.85,
		"idealista":       0.8,
		"casa":            0.75,
		"subito":          0.6,
		"link-scan":       0.6,
		"manual":          0.5,
	}
}

// Config configures a Scorer.
type Config struct {
	// SourceReliability maps lowercase source names to a value in [0,1].
	SourceReliability  map[string]float64
	DefaultReliability float64
	Now                func() time.Time
}

// Factors is the per-factor breakdown of a trust score, each in [0,1].
type Factors struct {
	SourceReliability float64 `json:"sourceReliability"`
	Completeness      float64 `json:"completeness"`
	Freshness         float64 `json:"freshness"`
	CrossSource       float64 `json:"crossSource"`
}

// Scorer computes trust scores. It holds no mutable state.
type Scorer struct {
	reliability        map[string]float64
	defaultReliability float64
	now                func() time.Time
}

// NewScorer builds a Scorer; zero-valued config fields fall back to defaults.
func NewScorer(cfg Config) *Scorer {
	s := &Scorer{
		reliability:        make(map[string]float64),
		defaultReliability: cfg.DefaultReliability,
		now:                cfg.Now,
	}
	table := cfg.SourceReliability
	if len(table) == 0 {
		table = DefaultSourceReliability()
	}
	for name, v := range table {
		s.reliability[strings.ToLower(strings.TrimSpace(name))] = clamp01(v)
	}
	if s.defaultReliability <= 0 {
		s.defaultReliability = DefaultReliability
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Score returns the weighted trust score of d in [0,1], rounded to two decimals.
func (s *Scorer) Score(d *models.DealNormalized) float64 {
	return s.Breakdown(d).Total()
}

// Breakdown returns the individual factors for d.
func (s *Scorer) Breakdown(d *models.DealNormalized) Factors {
	if d == nil {
		d = &models.DealNormalized{}
	}
	sources := SourceTokens(d.Source)
	return Factors{
		SourceReliability: s.sourceReliability(sources),
		Completeness:      completeness(d),
		Freshness:         s.freshness(d.DiscoveredAt),
		CrossSource:       crossSource(len(sources)),
	}
}

// Total combines the factors with their weights.
func (f Factors) Total() float64 {
	score := f.SourceReliability*WeightSourceReliability +
		f.Completeness*WeightCompleteness +
		f.Freshness*WeightFreshness +
		f.CrossSource*WeightCrossSource
	return math.Round(clamp01(score)*100) / 100
}

// Known reports whether source, matched case-insensitively, has an entry in
// the reliability table.
func (s *Scorer) Known(source string) bool {
	_, ok := s.reliability[strings.ToLower(strings.TrimSpace(source))]
	return ok
}

func (s *Scorer) sourceReliability(sources []string) float64 {
	best := -1.0
	for _, src := range sources {
		if v, ok := s.reliability[src]; ok && v > best {
			best = v
		}
	}
	if best < 0 {
		return s.defaultReliability
	}
	return best
}

func completeness(d *models.DealNormalized) float64 {
	present := 0
	for _, ok := range []bool{
		strings.TrimSpace(d.Address) != "",
		strings.TrimSpace(d.City) != "",
		d.Surface != nil,
		d.PriceAsk != nil,
		d.Lat != nil,
		d.Lng != nil,
		d.ZoningHint != "",
	} {
		if ok {
			present++
		}
	}
	return float64(present) / completenessFields
}

func (s *Scorer) freshness(discoveredAt time.Time) float64 {
	if discoveredAt.IsZero() {
		return 0.5
	}
	age := s.now().Sub(discoveredAt)
	switch {
	case age < time.Hour:
		return 1.0
	case age < 24*time.Hour:
		return 0.9
	case age < 7*24*time.Hour:
		return 0.7
	case age < 30*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

func crossSource(n int) float64 {
	switch {
	case n >= 4:
		return 0.9
	case n == 3:
		return 0.8
	case n == 2:
		return 0.7
	default:
		return 0.5
	}
}

// SourceTokens splits a comma-joined source list into distinct lowercase
// tokens, keeping first-seen order.
func SourceTokens(source string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range strings.Split(source, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
