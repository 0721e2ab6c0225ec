// internal/engine/coercion/city.go
package coercion

import (
	"regexp"
	"strings"
)

type cityPattern struct {
	name string
	re   *regexp.Regexp
}

var (
	// a whole comma-separated segment such as "Torino", "10121 Torino (TO)" or "San Donato Milanese"
	segmentCity = regexp.MustCompile(`^\s*(?:\d{5}\s+)?(\p{Lu}[\p{L}'’]+(?:[ -]\p{Lu}[\p{L}'’]+)*)\s*(?:\(\w{2}\))?\s*$`)
	// a capitalized word closing the address: "Strada Provinciale 12 Cuneo"
	trailingCity = regexp.MustCompile(`(\p{Lu}[\p{L}'’]+)\s*(?:\(\w{2}\))?\s*$`)

	tokenSep = regexp.MustCompile(`[\s,]+`)
)

func compileCities(names []string) []cityPattern {
	out := make([]cityPattern, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, cityPattern{
			name: name,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
		})
	}
	return out
}

// ExtractCity derives a city name from a free-text address. It tries the
// catalog's well-known cities first (rightmost match wins, so street names
// like "Via Roma" lose to a trailing city), then capitalized place names
// before a comma or at the end, and finally the last token.
func (c *Coercer) ExtractCity(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return c.catalog.UnknownCity
	}

	best, bestPos := "", -1
	for _, city := range c.cities {
		locs := city.re.FindAllStringIndex(address, -1)
		if len(locs) == 0 {
			continue
		}
		if pos := locs[len(locs)-1][0]; pos > bestPos {
			best, bestPos = city.name, pos
		}
	}
	if best != "" {
		return best
	}

	if segments := strings.Split(address, ","); len(segments) > 1 {
		for i := len(segments) - 1; i > 0; i-- {
			if m := segmentCity.FindStringSubmatch(segments[i]); m != nil {
				return m[1]
			}
		}
	}
	if m := trailingCity.FindStringSubmatch(address); m != nil {
		return m[1]
	}

	tokens := tokenSep.Split(address, -1)
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i] != "" {
			return tokens[i]
		}
	}
	return c.catalog.UnknownCity
}
