// Package utils holds small helpers shared across packages: logger
// construction, vector math, text truncation, and retrying.
package utils

import "unicode/utf8"

// Truncate cuts s to at most max runes and appends "..." when it was cut.
// Counting runes rather than bytes keeps multi-byte characters intact.
// Non-positive max returns s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
