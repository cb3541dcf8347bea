package util

import "strings"

// Before returns s up to the first sep, or s when sep is absent.
func Before(s, sep string) string {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i]
	}
	return s
}
