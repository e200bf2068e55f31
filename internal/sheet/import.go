package sheet

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
)

// MissingColumnsError reports required spreadsheet columns that matched no
// header. The import is rejected before any write.
type MissingColumnsError struct {
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("sheet: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ParseBinary parses an uploaded spreadsheet into normalized records for
// the entity. Used by the HTTP import path.
func ParseBinary(data []byte, desc *entity.Descriptor) ([]mapping.Record, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open upload")
	}
	return parse(f, desc)
}

// ParseFile parses a spreadsheet from disk. Used by the CLI import path.
func ParseFile(path string, desc *entity.Descriptor) ([]mapping.Record, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sheet: open %s", path)
	}
	return parse(f, desc)
}

func parse(f *xlsx.File, desc *entity.Descriptor) ([]mapping.Record, error) {
	if len(f.Sheets) == 0 {
		return nil, eris.New("sheet: file has no sheets")
	}
	s := f.Sheets[0]
	if len(s.Rows) == 0 {
		return nil, eris.New("sheet: file has no header row")
	}

	// Resolve header cells to internal field names. Multiple spellings per
	// field; first match wins per column.
	fieldByCol := map[int]string{}
	seen := map[string]bool{}
	for col, cell := range s.Rows[0].Cells {
		header := normalizeHeader(cell.String())
		if header == "" {
			continue
		}
		for _, field := range desc.Fields {
			if seen[field.Name] {
				continue
			}
			for _, spelling := range field.Headers {
				if normalizeHeader(spelling) == header {
					fieldByCol[col] = field.Name
					seen[field.Name] = true
					break
				}
			}
		}
	}

	var missing []string
	for _, field := range desc.Fields {
		if field.Required && !seen[field.Name] {
			missing = append(missing, field.Headers[0])
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing}
	}

	var records []mapping.Record
	for i, row := range s.Rows[1:] {
		rec := mapping.Record{}
		empty := true
		for col, cell := range row.Cells {
			field, ok := fieldByCol[col]
			if !ok {
				continue
			}
			value := strings.TrimSpace(cell.String())
			if field == desc.TargetCodeField {
				value = reconcile.NormalizeCode(value)
			}
			rec[field] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		if !hasNaturalKey(rec, desc) {
			zap.L().Warn("import row dropped, incomplete natural key",
				zap.String("entity", desc.Slug),
				zap.Int("row", i+2),
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func hasNaturalKey(rec mapping.Record, desc *entity.Descriptor) bool {
	for _, k := range desc.NaturalKey {
		if rec[k] == "" {
			return false
		}
	}
	return true
}
