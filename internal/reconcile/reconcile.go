// Package reconcile classifies DePara rows against the golden code set and
// keeps mirrored descriptions in sync. Classification is a pure function;
// it is computed on demand and never persisted.
package reconcile

import (
	"strings"

	"github.com/refdata-tools/depara-admin/internal/golden"
)

// Sentinel marks a row that intentionally has no mapping, as opposed to one
// that is merely unset.
const Sentinel = "S/DePara"

// Status is the reconciliation state of one target code.
type Status int

const (
	// Unmapped: target code empty or null.
	Unmapped Status = iota
	// ExplicitNoMapping: target code is the sentinel.
	ExplicitNoMapping
	// Valid: target code present in the golden code set.
	Valid
	// Invalid: non-empty, not the sentinel, absent from the golden set.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Unmapped:
		return "unmapped"
	case ExplicitNoMapping:
		return "sem_depara"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// NormalizeCode trims surrounding whitespace and folds case variants of the
// sentinel ("S/DEPARA" arrives uppercase from some spreadsheets) to the
// canonical spelling.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if strings.EqualFold(code, Sentinel) {
		return Sentinel
	}
	return code
}

// Classify returns the status of a target code against the golden code set.
// Total and deterministic: any input maps to exactly one status.
func Classify(code string, codes golden.CodeSet) Status {
	code = NormalizeCode(code)
	switch {
	case code == "":
		return Unmapped
	case code == Sentinel:
		return ExplicitNoMapping
	case codes.Contains(code):
		return Valid
	default:
		return Invalid
	}
}
