// internal/engine/coercion/catalog.go
package coercion

import "deal-engine/internal/models"

// ZoningRule maps keyword substrings to a zoning category.
type ZoningRule struct {
	Category models.Zoning `mapstructure:"category"`
	Keywords []string      `mapstructure:"keywords"`
}

// Catalog is the lookup data used by a Coercer. Rules are matched in order.
type Catalog struct {
	Zoning      []ZoningRule
	Cities      []string
	UnknownCity string
}

const defaultUnknownCity = "Unknown"

// DefaultCatalog returns the built-in Italian/English catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Zoning: []ZoningRule{
			{
				Category: models.ZoningResidential,
				Keywords: []string{
					"residential", "residenziale", "abitazione", "abitativo", "appartamento",
					"villa", "casa", "apartment", "flat", "home", "dwelling",
				},
			},
			{
				Category: models.ZoningCommercial,
				Keywords: []string{
					"commercial", "commerciale", "negozio", "ufficio", "uffici",
					"retail", "shop", "office", "store", "terziario",
				},
			},
			{
				Category: models.ZoningIndustrial,
				Keywords: []string{
					"industrial", "industriale", "capannone", "magazzino", "produttivo",
					"warehouse", "factory", "artigianale", "laboratorio",
				},
			},
			{
				Category: models.ZoningAgricultural,
				Keywords: []string{
					"agricultural", "agricolo", "agricola", "rurale", "terreno agricolo",
					"farm", "farmland", "vigneto", "uliveto",
				},
			},
			{
				Category: models.ZoningMixed,
				Keywords: []string{"mixed", "misto", "mista", "polifunzionale"},
			},
		},
		Cities: []string{
			"Milano", "Roma", "Torino", "Napoli", "Firenze", "Bologna", "Genova",
			"Venezia", "Verona", "Palermo", "Bari", "Catania", "Padova", "Trieste",
			"Brescia", "Bergamo", "Modena", "Parma",
			"Milan", "Rome", "Turin", "Naples", "Florence", "Venice", "Genoa",
		},
		UnknownCity: defaultUnknownCity,
	}
}

// Merge overlays non-empty fields of override onto c.
func (c Catalog) Merge(override Catalog) Catalog {
	out := c
	if len(override.Zoning) > 0 {
		out.Zoning = override.Zoning
	}
	if len(override.Cities) > 0 {
		out.Cities = override.Cities
	}
	if override.UnknownCity != "" {
		out.UnknownCity = override.UnknownCity
	}
	return out
}
