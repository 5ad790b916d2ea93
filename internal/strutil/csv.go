// SPDX-License-Identifier: MIT

// Package strutil holds small string helpers shared by commands.
package strutil

import "strings"

// SplitCSV splits a comma-separated flag value, trimming entries and dropping
// empty ones.
func SplitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SetOf returns the distinct values as a lookup set. A nil set means "no filter".
func SetOf(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
