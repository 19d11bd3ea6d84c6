package common

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Round rounds half up, so -1.5 becomes -1 and 2.5 becomes 3.
func Round(f float64) int {
	return int(math.Floor(f + 0.5))
}

// TrimmedLen returns the rune count of s without surrounding whitespace.
func TrimmedLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}

// NormalizeKey lower-cases and trims s for use as a cache key.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
