// Package utils provides small helpers for query parsing that carry no
// progression semantics.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
//
//	utils.AtoiDefault("42", 0) // 42
//	utils.AtoiDefault("x", 5)  // 5
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage normalizes a page request: page is at least 1 and size is in
// [1, max]. Out-of-range sizes fall back to the nearest bound.
func ClampPage(page, size, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if max < 1 {
		max = 1
	}
	switch {
	case size < 1:
		size = 1
	case size > max:
		size = max
	}
	return page, size
}
