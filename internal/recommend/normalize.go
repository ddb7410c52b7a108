package recommend

import (
	"math"
	"strconv"
	"strings"
)

// NormalizePair canonicalizes a and b when both are numeric, so that "10" and
// "10.0" compare equal. Non-numeric or nil values are returned unchanged.
// Both reconcilers compare values only through this function.
func NormalizePair(a, b *string) (*string, *string) {
	if a == nil || b == nil {
		return a, b
	}
	na, okA := canonicalNumber(*a)
	nb, okB := canonicalNumber(*b)
	if !okA || !okB {
		return a, b
	}
	return &na, &nb
}

// SameValue reports whether a and b are equal after normalization.
func SameValue(a, b *string) bool {
	a, b = NormalizePair(a, b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func canonicalNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}
