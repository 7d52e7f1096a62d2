// Package meshid generates and validates the identifiers meshd hands out to
// nodes, peers, clients, and requests.
package meshid

import "github.com/google/uuid"

// New returns a fresh canonical (8-4-4-4-12) UUID string, used for node,
// peer, and client identifiers, and for transaction ids meshd mints on
// forwarded frames.
func New() string {
	return uuid.NewString()
}

// IsValid reports whether s parses as a UUID: the canonical 8-4-4-4-12
// hex form, the 32-hex-no-dashes form (spec.md §6), or the
// "urn:uuid:"-prefixed and brace-wrapped forms uuid.Parse also accepts.
func IsValid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
