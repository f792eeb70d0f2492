// Package pageid canonicalizes Notion page identifiers.
//
// Notion accepts page ids both as 32 hex characters ("a1b2...") and as
// dashed UUIDs ("a1b2c3d4-...."), while record maps returned by the API are
// keyed by the dashed form. Canonical maps every accepted spelling to one
// key so lookups never depend on how the caller wrote the id.
package pageid

import (
	"strings"

	"github.com/google/uuid"
)

// Canonical returns the canonical form of a page identifier.
//
// UUIDs in any form accepted by uuid.Parse (dashed, undashed, braced, urn)
// become lower-case dashed UUIDs. Anything else is returned trimmed and
// lower-cased.
func Canonical(id string) string {
	trimmed := strings.TrimSpace(id)
	if u, err := uuid.Parse(trimmed); err == nil {
		return u.String()
	}
	return strings.ToLower(trimmed)
}

// IsBlank reports whether id is empty after trimming whitespace.
func IsBlank(id string) bool {
	return strings.TrimSpace(id) == ""
}

// Compact returns the undashed 32-character form for UUID ids, which is how
// Notion page URLs spell them. Non-UUID ids are returned canonicalized.
func Compact(id string) string {
	return strings.ReplaceAll(Canonical(id), "-", "")
}
