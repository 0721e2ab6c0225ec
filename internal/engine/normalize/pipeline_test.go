package normalize

import (
	"testing"
	"time"

	"deal-engine/internal/engine/coercion"
	"deal-engine/internal/engine/fingerprint"
	"deal-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPipeline() *Pipeline {
	return New(Options{
		Now:   func() time.Time { return fixedNow },
		NewID: func() string { return "generated-id" },
	})
}

func TestPipeline_NormalizeDeal_EndToEnd(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{
		"id":         "d1",
		"source":     "idealista",
		"address":    "Via Roma 123, Torino",
		"city":       "Torino",
		"surface":    100,
		"priceAsk":   500000,
		"zoningHint": "residential",
	})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, "d1", d.ID)
	assert.Equal(t, "idealista", d.Source)
	assert.Equal(t, models.PolicyAllowed, d.Policy)
	assert.Greater(t, d.Trust, 0.0)
	assert.Equal(t, 0.75, d.Trust)
	require.NotNil(t, d.Fingerprint)
	assert.Equal(t, models.ZoningResidential, d.Fingerprint.Zoning)
	assert.Equal(t, "0-100", d.Fingerprint.SurfaceRange)
	assert.Equal(t, "200k-500k", d.Fingerprint.PriceRange)
	assert.Equal(t, fixedNow, d.DiscoveredAt)
	assert.Equal(t, fixedNow, d.UpdatedAt)
	assert.Equal(t, *d.Fingerprint, d.Metadata[MetaFingerprint])
	assert.Equal(t, "Via Roma 123, Torino", d.Metadata[MetaOriginal].(map[string]interface{})["address"])
}

func TestPipeline_NormalizeDeal_Rejections(t *testing.T) {
	p := newTestPipeline()

	tests := []struct {
		name string
		raw  models.DealRaw
		want error
	}{
		{"nil", nil, ErrNotAnObject},
		{"empty", models.DealRaw{}, ErrNoLocation},
		{"no location", models.DealRaw{"foo": "bar"}, ErrNoLocation},
		{"blank location", models.DealRaw{"address": "  ", "city": ""}, ErrNoLocation},
		{"null location", models.DealRaw{"location": nil}, ErrNoLocation},
		{"empty location object", models.DealRaw{"location": map[string]interface{}{}}, ErrNoLocation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.NormalizeDeal(tt.raw)
			assert.Nil(t, d)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPipeline_NormalizeJSON(t *testing.T) {
	p := newTestPipeline()

	for _, in := range []string{`null`, `[]`, `"deal"`, `42`, `{`} {
		d, err := p.NormalizeJSON([]byte(in))
		assert.Nil(t, d, in)
		assert.ErrorIs(t, err, ErrNotAnObject, in)
	}

	d, err := p.NormalizeJSON([]byte(`{"location":"Corso Francia 5, Torino","price":"€ 250.000","sqm":"85 mq"}`))
	require.NoError(t, err)
	assert.Equal(t, "Corso Francia 5, Torino", d.Address)
	assert.Equal(t, "Torino", d.City)
	assert.Equal(t, 250000.0, *d.PriceAsk)
	assert.Equal(t, 85.0, *d.Surface)
}

func TestPipeline_NormalizeDeal_Synonyms(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{
		"listingId":    "L-9",
		"portal":       "casa",
		"indirizzo":    "Via Garibaldi 7, Genova",
		"comune":       "Genova",
		"area":         "120 m²",
		"cost":         "350k",
		"category":     "Negozio su strada",
		"latitude":     "44.41",
		"lon":          8.93,
		"policy":       "LIMITED",
		"unrelatedKey": true,
	})
	require.NoError(t, err)

	assert.Equal(t, "L-9", d.ID)
	assert.Equal(t, "casa", d.Source)
	assert.Equal(t, "Via Garibaldi 7, Genova", d.Address)
	assert.Equal(t, "Genova", d.City)
	assert.Equal(t, 120.0, *d.Surface)
	assert.Equal(t, 350000.0, *d.PriceAsk)
	assert.Equal(t, models.ZoningCommercial, d.ZoningHint)
	assert.InDelta(t, 44.41, *d.Lat, 1e-9)
	assert.InDelta(t, 8.93, *d.Lng, 1e-9)
	assert.Equal(t, models.PolicyLimited, d.Policy)
}

func TestPipeline_NormalizeDeal_SynonymPrecedence(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{
		"city":     "Roma",
		"price":    100000,
		"priceAsk": 200000,
		"surface":  "",
		"area":     60,
	})
	require.NoError(t, err)

	assert.Equal(t, 100000.0, *d.PriceAsk)
	assert.Equal(t, 60.0, *d.Surface, "blank values fall through to the next variant")
}

func TestPipeline_NormalizeDeal_Defaults(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{"city": "Bologna", "policy": "whatever", "zoning": "box auto", "price": "trattativa"})
	require.NoError(t, err)

	assert.Equal(t, "generated-id", d.ID)
	assert.Empty(t, d.Address)
	assert.Equal(t, "Bologna", d.City)
	assert.Equal(t, models.PolicyAllowed, d.Policy)
	assert.Empty(t, d.ZoningHint)
	assert.Nil(t, d.PriceAsk, "coercion misses are omitted")
	assert.Nil(t, d.Surface)
	assert.Equal(t, models.ZoningUnknown, d.Fingerprint.Zoning)
}

func TestPipeline_NormalizeDeal_AddressLess(t *testing.T) {
	p := newTestPipeline()

	tests := []struct {
		name     string
		raw      models.DealRaw
		wantCity string
		wantLat  *float64
		wantLng  *float64
	}{
		{
			name:     "city only",
			raw:      models.DealRaw{"city": "Torino", "surface": 100, "price": 300000},
			wantCity: "Torino",
		},
		{
			name:     "coordinates object",
			raw:      models.DealRaw{"location": map[string]interface{}{"lat": 45.0, "lng": 7.6}, "surface": 100},
			wantCity: coercion.Default().ExtractCity(""),
			wantLat:  models.Float(45),
			wantLng:  models.Float(7.6),
		},
		{
			name:     "top-level coordinates win over the location object",
			raw:      models.DealRaw{"comune": "Asti", "lat": 44.9, "location": map[string]interface{}{"latitude": 1.0, "lon": 8.2}},
			wantCity: "Asti",
			wantLat:  models.Float(44.9),
			wantLng:  models.Float(8.2),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := p.NormalizeDeal(tt.raw)
			require.NoError(t, err)

			assert.Empty(t, d.Address)
			assert.Equal(t, tt.wantCity, d.City)
			assert.Equal(t, tt.wantLat, d.Lat)
			assert.Equal(t, tt.wantLng, d.Lng)
			require.NotNil(t, d.Fingerprint)
			assert.True(t, d.Fingerprint.Sentinel)
		})
	}
}

func TestPipeline_NormalizeDeal_CityFromAddress(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{"address": "Piazza Maggiore 1, Bologna"})
	require.NoError(t, err)
	assert.Equal(t, "Bologna", d.City)
}

func TestPipeline_NormalizeDeal_InjectedCatalog(t *testing.T) {
	p := New(Options{
		Coercer: coercion.New(coercion.Catalog{
			Zoning:      []coercion.ZoningRule{{Category: models.ZoningIndustrial, Keywords: []string{"bottega"}}},
			UnknownCity: "n/d",
		}),
		Now: func() time.Time { return fixedNow },
	})

	d, err := p.NormalizeDeal(models.DealRaw{"location": "Bottega storica", "type": "bottega"})
	require.NoError(t, err)
	assert.Equal(t, models.ZoningIndustrial, d.ZoningHint)
	assert.NotEmpty(t, d.ID)
}

func TestPipeline_NormalizeDeal_MetadataPassthrough(t *testing.T) {
	p := newTestPipeline()

	raw := models.DealRaw{
		"address":  "Via Po 1, Torino",
		"metadata": map[string]interface{}{"auctionId": "A-1"},
	}
	d, err := p.NormalizeDeal(raw)
	require.NoError(t, err)

	assert.Equal(t, "A-1", d.Metadata["auctionId"])
	assert.Contains(t, d.Metadata, MetaOriginal)

	d.Metadata[MetaOriginal].(map[string]interface{})["address"] = "changed"
	assert.Equal(t, "Via Po 1, Torino", raw["address"], "raw input is not aliased")
}

func TestPipeline_NormalizeDeal_FingerprintMatchesEngine(t *testing.T) {
	p := newTestPipeline()

	d, err := p.NormalizeDeal(models.DealRaw{"address": "Via Po 1, Torino", "surface": 105})
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Generate(fingerprint.FromDeal(d)), *d.Fingerprint)
	assert.Equal(t, "100-200", d.Fingerprint.SurfaceRange)
}
