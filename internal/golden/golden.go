// Package golden reads the homologation ("WF") tables that hold the
// authoritative codes local DePara rows are validated against. All access
// is read-only; view-path reads fail soft so the admin UI still renders
// when the homologation database is unreachable.
package golden

import "context"

// Record is one row of a homologation table.
type Record struct {
	Code        string
	Description string
	Active      bool
}

// CodeSet is the set of valid golden codes, string-compared.
type CodeSet map[string]struct{}

// Contains reports membership.
func (s CodeSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Source exposes the read operations the reconciler and exports need.
type Source interface {
	// ListCodes returns all non-null codes. On failure it logs and returns
	// an empty set; callers must treat an empty set as "unavailable", not
	// "nothing valid".
	ListCodes(ctx context.Context) CodeSet

	// LookupDescription returns the description for an exact code match.
	// Absent codes, blank input and connection failures all report false.
	LookupDescription(ctx context.Context, code string) (string, bool)

	// ListRecords returns the full golden table for export. Unlike the two
	// soft-fail reads, an export with silently missing content would be
	// worse than an error, so this one reports failures.
	ListRecords(ctx context.Context) ([]Record, error)
}
