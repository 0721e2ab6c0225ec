// internal/models/deal.go
package models

import "time"

// DealRaw is an untyped listing payload as produced by any upstream source.
// No key is guaranteed to be present and numeric values may arrive as strings.
type DealRaw map[string]interface{}

// Zoning is a canonical zoning category.
type Zoning string

const (
	ZoningResidential  Zoning = "residential"
	ZoningCommercial   Zoning = "commercial"
	ZoningIndustrial   Zoning = "industrial"
	ZoningAgricultural Zoning = "agricultural"
	ZoningMixed        Zoning = "mixed"
	// ZoningUnknown is only used inside fingerprints.
	ZoningUnknown Zoning = "unknown"
)

// IsCanonical reports whether z is one of the five zoning categories.
func (z Zoning) IsCanonical() bool {
	switch z {
	case ZoningResidential, ZoningCommercial, ZoningIndustrial, ZoningAgricultural, ZoningMixed:
		return true
	}
	return false
}

// Policy controls what downstream consumers may do with a deal.
type Policy string

const (
	PolicyAllowed Policy = "allowed"
	PolicyLimited Policy = "limited"
	PolicyBlocked Policy = "blocked"
)

// ParsePolicy maps a raw label to a Policy, defaulting to PolicyAllowed.
func ParsePolicy(s string) Policy {
	switch Policy(s) {
	case PolicyLimited:
		return PolicyLimited
	case PolicyBlocked:
		return PolicyBlocked
	}
	return PolicyAllowed
}

// Fingerprint is the reproducible identity of a deal used for blocking.
type Fingerprint struct {
	AddressHash  string `json:"addressHash"`
	SurfaceRange string `json:"surfaceRange"`
	PriceRange   string `json:"priceRange"`
	Zoning       Zoning `json:"zoning"`
	Hash         string `json:"hash"`
	// Sentinel is set on the shared fingerprint of deals without an address.
	Sentinel bool `json:"sentinel,omitempty"`
}

// BlockingKey is the composite key used by blocking deduplication.
func (f Fingerprint) BlockingKey() string {
	return f.Hash + "|" + f.SurfaceRange + "|" + f.PriceRange
}

// DealNormalized is the canonical listing record.
type DealNormalized struct {
	ID           string                 `json:"id"`
	Source       string                 `json:"source"`
	Address      string                 `json:"address"`
	City         string                 `json:"city"`
	Lat          *float64               `json:"lat,omitempty"`
	Lng          *float64               `json:"lng,omitempty"`
	Surface      *float64               `json:"surface,omitempty"`
	PriceAsk     *float64               `json:"priceAsk,omitempty"`
	ZoningHint   Zoning                 `json:"zoningHint,omitempty"`
	Policy       Policy                 `json:"policy"`
	Trust        float64                `json:"trust"`
	Fingerprint  *Fingerprint           `json:"fingerprint,omitempty"`
	DiscoveredAt time.Time              `json:"discoveredAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a copy that shares no pointers or maps with d.
func (d DealNormalized) Clone() DealNormalized {
	out := d
	out.Lat = cloneFloat(d.Lat)
	out.Lng = cloneFloat(d.Lng)
	out.Surface = cloneFloat(d.Surface)
	out.PriceAsk = cloneFloat(d.PriceAsk)
	if d.Fingerprint != nil {
		fp := *d.Fingerprint
		out.Fingerprint = &fp
	}
	if d.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
