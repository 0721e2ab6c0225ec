// internal/engine/dedup/similarity.go
package dedup

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"deal-engine/internal/engine/fingerprint"
)

// Similarity returns 1 - editDistance/maxLen over the normalized strings, in
// [0,1]. Two empty strings have similarity 0.
func Similarity(a, b string) float64 {
	a, b = fingerprint.NormalizeAddress(a), fingerprint.NormalizeAddress(b)
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// AddressesSimilar reports whether one normalized address contains the other
// or their similarity exceeds threshold. Empty addresses are never similar.
func AddressesSimilar(a, b string, threshold float64) bool {
	a, b = fingerprint.NormalizeAddress(a), fingerprint.NormalizeAddress(b)
	if a == "" || b == "" {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	return Similarity(a, b) > threshold
}

// WithinTolerance reports whether |x-y| / max(|x|,|y|) <= tol. Absent, zero
// or non-finite values never match.
func WithinTolerance(x, y *float64, tol float64) bool {
	if x == nil || y == nil || *x == 0 || *y == 0 {
		return false
	}
	a, b := *x, *y
	if !isFinite(a) || !isFinite(b) || !isFinite(tol) || tol < 0 {
		return false
	}
	return math.Abs(a-b)/math.Max(math.Abs(a), math.Abs(b)) <= tol
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
