package model

import "strings"

// NormalizeMealTypeName maps a display name to the form used for
// uniqueness checks: trimmed and lowercased.
func NormalizeMealTypeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
