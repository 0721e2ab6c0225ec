// internal/engine/fingerprint/fingerprint.go
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"deal-engine/internal/models"
)

const (
	addressHashLen = 12

	// sentinelAddress is hashed for every deal that has no address.
	sentinelAddress = "__no_address__"
)

// band is an inclusive upper bound and its label. Bands are checked in order
// and the first bound >= value wins, so the overlapping "0-50"/"0-100" labels
// are kept exactly as they are.
type band struct {
	max   float64
	label string
}

var surfaceBands = []band{
	{50, "0-50"},
	{100, "0-100"},
	{200, "100-200"},
	{500, "200-500"},
	{1000, "500-1000"},
}

const surfaceTop = "1000+"

var priceBands = []band{
	{100_000, "0-100k"},
	{200_000, "0-200k"},
	{500_000, "200k-500k"},
	{1_000_000, "500k-1M"},
	{2_000_000, "1M-2M"},
}

const priceTop = "2M+"

// Input is the subset of a deal a fingerprint is computed from.
type Input struct {
	Address  string
	Surface  *float64
	PriceAsk *float64
	Zoning   models.Zoning
}

// FromDeal extracts the fingerprint input from a deal.
func FromDeal(d *models.DealNormalized) Input {
	if d == nil {
		return Input{}
	}
	return Input{
		Address:  d.Address,
		Surface:  d.Surface,
		PriceAsk: d.PriceAsk,
		Zoning:   d.ZoningHint,
	}
}

// Generate derives the fingerprint of in. It is a pure function of the
// normalized address, the two range buckets and the zoning.
func Generate(in Input) models.Fingerprint {
	address := NormalizeAddress(in.Address)
	if address == "" {
		return Sentinel()
	}

	fp := models.Fingerprint{
		AddressHash:  shortHash(address),
		SurfaceRange: SurfaceRange(in.Surface),
		PriceRange:   PriceRange(in.PriceAsk),
		Zoning:       zoningOrUnknown(in.Zoning),
	}
	fp.Hash = combinedHash(fp)
	return fp
}

// Sentinel is the fingerprint shared by all address-less deals. They all land
// in one blocking bucket.
func Sentinel() models.Fingerprint {
	fp := models.Fingerprint{
		AddressHash:  shortHash(sentinelAddress),
		SurfaceRange: SurfaceRange(nil),
		PriceRange:   PriceRange(nil),
		Zoning:       models.ZoningUnknown,
		Sentinel:     true,
	}
	fp.Hash = combinedHash(fp)
	return fp
}

// NormalizeAddress lowercases, trims and collapses whitespace.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// SurfaceRange buckets a surface area; an absent value buckets as zero.
func SurfaceRange(surface *float64) string {
	return bucket(surface, surfaceBands, surfaceTop)
}

// PriceRange buckets an asking price; an absent value buckets as zero.
func PriceRange(price *float64) string {
	return bucket(price, priceBands, priceTop)
}

func bucket(v *float64, bands []band, top string) string {
	var x float64
	if v != nil {
		x = *v
	}
	for _, b := range bands {
		if x <= b.max {
			return b.label
		}
	}
	return top
}

func zoningOrUnknown(z models.Zoning) models.Zoning {
	if z.IsCanonical() {
		return z
	}
	return models.ZoningUnknown
}

func combinedHash(fp models.Fingerprint) string {
	key := strings.Join([]string{fp.AddressHash, fp.SurfaceRange, fp.PriceRange, string(fp.Zoning)}, "-")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:addressHashLen]
}
