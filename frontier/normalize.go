package frontier

import (
	"strings"

	"github.com/brunobiangulo/specconverge/canon"
)

// normalizeQuery implements spec.md §4.2 "Normalization is trim + collapse
// whitespace + lowercase."
func normalizeQuery(q string) string {
	fields := strings.Fields(q)
	return strings.ToLower(strings.Join(fields, " "))
}

// canonicalizeURL is the shared entry point into canon for frontier rows.
func canonicalizeURL(raw string) canon.Result {
	return canon.Canonicalize(raw)
}
