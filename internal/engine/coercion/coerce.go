// internal/engine/coercion/coerce.go
package coercion

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"deal-engine/internal/models"
)

// numericPart captures the first number in a string, separators included.
var numericPart = regexp.MustCompile(`-?\d[\d.,]*`)

// Coercer turns loosely typed raw values into canonical values. It never panics
// on data and reports misses with a false second return value.
type Coercer struct {
	catalog Catalog
	cities  []cityPattern
}

// New builds a Coercer over the given catalog.
func New(catalog Catalog) *Coercer {
	if catalog.UnknownCity == "" {
		catalog.UnknownCity = defaultUnknownCity
	}
	return &Coercer{
		catalog: catalog,
		cities:  compileCities(catalog.Cities),
	}
}

// Default returns a Coercer over DefaultCatalog.
func Default() *Coercer {
	return New(DefaultCatalog())
}

// CoerceNumber accepts numbers as-is and parses strings such as "€ 250.000",
// "1,2M" or "85 mq". A k/K suffix multiplies by 1e3 and m/M by 1e6 when it
// directly follows the number and nothing alphanumeric comes after it.
func (c *Coercer) CoerceNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	case string:
		return parseNumber(v)
	}
	return 0, false
}

func parseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	loc := numericPart.FindStringIndex(s)
	if loc == nil {
		return 0, false
	}

	num, ok := normalizeSeparators(s[loc[0]:loc[1]])
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return finite(f * suffixMultiplier(s[loc[1]:]))
}

func suffixMultiplier(rest string) float64 {
	rest = strings.TrimLeft(rest, " \t")
	r, size := utf8.DecodeRuneInString(rest)
	var mult float64
	switch r {
	case 'k', 'K':
		mult = 1_000
	case 'm', 'M':
		mult = 1_000_000
	default:
		return 1
	}
	for _, tail := range rest[size:] {
		if unicode.IsLetter(tail) || unicode.IsNumber(tail) {
			return 1
		}
	}
	return mult
}

// normalizeSeparators rewrites a number with '.'/',' separators to Go syntax.
// With both present the last one is the decimal separator. A lone kind is a
// thousands separator when it repeats or is followed by exactly three digits.
func normalizeSeparators(num string) (string, bool) {
	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimal, thousands := ".", ","
		if lastComma > lastDot {
			decimal, thousands = ",", "."
		}
		num = strings.ReplaceAll(num, thousands, "")
		if strings.Count(num, decimal) > 1 {
			return "", false
		}
		return strings.Replace(num, decimal, ".", 1), true

	case lastDot >= 0 || lastComma >= 0:
		sep, idx := ".", lastDot
		if lastComma >= 0 {
			sep, idx = ",", lastComma
		}
		intPart := strings.TrimPrefix(num[:strings.Index(num, sep)], "-")
		digitsAfter := len(num) - idx - 1
		if strings.Count(num, sep) > 1 || (digitsAfter == 3 && intPart != "0") {
			return strings.ReplaceAll(num, sep, ""), true
		}
		return strings.Replace(num, sep, ".", 1), true
	}
	return num, true
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// InferZoning matches a free-text label against the catalog's keyword sets.
// Matching is case-insensitive substring matching; the first rule wins.
func (c *Coercer) InferZoning(label string) (models.Zoning, bool) {
	lower := strings.ToLower(strings.TrimSpace(label))
	if lower == "" {
		return "", false
	}
	for _, rule := range c.catalog.Zoning {
		for _, kw := range rule.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return rule.Category, true
			}
		}
	}
	return "", false
}

// UnknownCity is the placeholder returned for empty addresses.
func (c *Coercer) UnknownCity() string {
	return c.catalog.UnknownCity
}
