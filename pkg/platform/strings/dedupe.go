// Package strings provides string list helpers for flag and environment input.
package strings

import (
	"strings"
)

// SplitList splits a comma separated value into trimmed, unique, non-empty
// elements in their original order.
//
// Example:
//
//	SplitList(" b1:9092, b2:9092,,b1:9092")
//	// Returns: []string{"b1:9092", "b2:9092"}
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(s, ","))
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var result []string
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}
