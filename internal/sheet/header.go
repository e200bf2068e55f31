// Package sheet converts between DePara rows and spreadsheets: the import
// adapter normalizes uploaded files into records keyed by internal field
// names, the export adapter renders rows with status-colored codes.
package sheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// headerFold strips accents so "Código de Origem" matches the unaccented
// spelling operators also type.
var headerFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeHeader folds a spreadsheet header for comparison: lower case,
// accents stripped, spaces and underscores removed.
func normalizeHeader(h string) string {
	folded, _, err := transform.String(headerFold, h)
	if err != nil {
		folded = h
	}
	folded = strings.ToLower(folded)
	folded = strings.Map(func(r rune) rune {
		if r == ' ' || r == '_' || r == '\t' {
			return -1
		}
		return r
	}, folded)
	return folded
}
