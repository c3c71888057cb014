// Package strings holds small string-list helpers shared by validation code.
package strings

import (
	"strings"
)

// Compact runs clean over each value and drops empty results. Order and
// repeated entries are preserved. A nil clean only trims whitespace. A nil
// input stays nil.
func Compact(values []string, clean func(string) string) []string {
	if values == nil {
		return nil
	}
	if clean == nil {
		clean = strings.TrimSpace
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if c := clean(v); c != "" {
			out = append(out, c)
		}
	}
	return out
}
