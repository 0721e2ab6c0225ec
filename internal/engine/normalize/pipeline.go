// internal/engine/normalize/pipeline.go
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"deal-engine/internal/engine/coercion"
	"deal-engine/internal/engine/fingerprint"
	"deal-engine/internal/engine/trust"
	"deal-engine/internal/models"
)

// Rejection reasons. A rejected record is an expected outcome, not a failure.
var (
	ErrNotAnObject = errors.New("raw deal is not an object")
	ErrNoLocation  = errors.New("raw deal has no address, city or location")
)

// Field-name variants, checked in order.
var (
	idKeys       = []string{"id", "_id", "externalId", "listingId"}
	sourceKeys   = []string{"source", "provider", "portal"}
	addressKeys  = []string{"address", "indirizzo", "location"}
	cityKeys     = []string{"city", "comune", "town"}
	locationKeys = []string{"address", "city", "location"}
	surfaceKeys  = []string{"surface", "area", "sqm", "mq"}
	priceKeys    = []string{"price", "priceAsk", "cost", "prezzo"}
	zoningKeys   = []string{"zoningHint", "zoning", "category", "type", "destinazione"}
	latKeys      = []string{"lat", "latitude"}
	lngKeys      = []string{"lng", "lon", "longitude"}
)

// Metadata keys written by the pipeline.
const (
	MetaOriginal    = "original"
	MetaFingerprint = "fingerprint"
)

// Options configures a Pipeline. Nil fields fall back to defaults.
type Options struct {
	Coercer *coercion.Coercer
	Scorer  *trust.Scorer
	Now     func() time.Time
	NewID   func() string
}

// Pipeline turns raw records into canonical deals.
type Pipeline struct {
	coercer *coercion.Coercer
	scorer  *trust.Scorer
	now     func() time.Time
	newID   func() string
}

// New builds a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		coercer: opts.Coercer,
		scorer:  opts.Scorer,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.coercer == nil {
		p.coercer = coercion.Default()
	}
	if p.scorer == nil {
		p.scorer = trust.NewScorer(trust.Config{Now: p.now})
	}
	if p.newID == nil {
		p.newID = func() string { return uuid.New().String() }
	}
	return p
}

// NormalizeJSON decodes data and normalizes it. Anything other than a JSON
// object is rejected with ErrNotAnObject.
func (p *Pipeline) NormalizeJSON(data []byte) (*models.DealNormalized, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}
	return p.NormalizeDeal(obj)
}

// NormalizeDeal builds a DealNormalized from raw. It returns ErrNotAnObject
// for a nil record and ErrNoLocation when no locational field is present.
func (p *Pipeline) NormalizeDeal(raw models.DealRaw) (*models.DealNormalized, error) {
	if raw == nil {
		return nil, ErrNotAnObject
	}
	if !hasAny(raw, locationKeys...) {
		return nil, ErrNoLocation
	}

	now := p.now()
	d := &models.DealNormalized{
		Policy:       models.PolicyAllowed,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}

	if id, ok := firstString(raw, idKeys...); ok {
		d.ID = id
	} else {
		d.ID = p.newID()
	}
	d.Source, _ = firstString(raw, sourceKeys...)

	// A bare city is not an address: it would be a substring of every street
	// in that city. Address-less deals keep the sentinel fingerprint.
	d.Address, _ = firstString(raw, addressKeys...)
	if city, hasCity := firstString(raw, cityKeys...); hasCity {
		d.City = city
	} else {
		d.City = p.coercer.ExtractCity(d.Address)
	}

	d.Surface = p.number(raw, surfaceKeys...)
	d.PriceAsk = p.number(raw, priceKeys...)
	d.Lat = p.number(raw, latKeys...)
	d.Lng = p.number(raw, lngKeys...)
	if loc, ok := raw["location"].(map[string]interface{}); ok {
		if d.Lat == nil {
			d.Lat = p.number(loc, latKeys...)
		}
		if d.Lng == nil {
			d.Lng = p.number(loc, lngKeys...)
		}
	}

	if label, ok := firstString(raw, zoningKeys...); ok {
		if z, ok := p.coercer.InferZoning(label); ok {
			d.ZoningHint = z
		}
	}
	if policy, ok := firstString(raw, "policy"); ok {
		d.Policy = models.ParsePolicy(strings.ToLower(policy))
	}

	fp := fingerprint.Generate(fingerprint.FromDeal(d))
	d.Fingerprint = &fp
	d.Trust = p.scorer.Score(d)
	d.Metadata = buildMetadata(raw, fp)

	return d, nil
}

// KnownSource reports whether source is listed in the reliability table.
func (p *Pipeline) KnownSource(source string) bool {
	return p.scorer.Known(source)
}

func (p *Pipeline) number(raw models.DealRaw, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || isBlank(v) {
			continue
		}
		if f, ok := p.coercer.CoerceNumber(v); ok {
			return models.Float(f)
		}
		return nil
	}
	return nil
}

func buildMetadata(raw models.DealRaw, fp models.Fingerprint) map[string]interface{} {
	meta := make(map[string]interface{})
	if extra, ok := raw["metadata"].(map[string]interface{}); ok {
		for k, v := range extra {
			meta[k] = v
		}
	}
	original := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		original[k] = v
	}
	meta[MetaOriginal] = original
	meta[MetaFingerprint] = fp
	return meta
}

// firstString returns the first key holding a non-blank scalar, as a trimmed
// string.
func firstString(raw models.DealRaw, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || isBlank(v) {
			continue
		}
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s), true
		case json.Number:
			return s.String(), true
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return fmt.Sprint(s), true
		}
	}
	return "", false
}

// hasAny reports whether any key holds a non-blank value of any type,
// including nested objects such as a {lat, lng} location.
func hasAny(raw models.DealRaw, keys ...string) bool {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || isBlank(v) {
			continue
		}
		if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
			continue
		}
		return true
	}
	return false
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
