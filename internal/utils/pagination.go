// Package utils provides small helpers shared across layers with no domain
// knowledge of their own.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 integer, returning def when s is empty or
// not a valid number. Query-string pagination parameters run through this so a
// malformed value degrades to the default instead of erroring.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
