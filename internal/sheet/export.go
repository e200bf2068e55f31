package sheet

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
	"github.com/refdata-tools/depara-admin/internal/reconcile"
)

// maxColWidth caps auto-sized column widths.
const maxColWidth = 50

// Fill colors per reconciliation status (ARGB).
const (
	colorUnmapped  = "FFFFC000" // orange
	colorSentinel  = "FFFFFF00" // yellow
	colorValid     = "FF92D050" // green
	colorInvalid   = "FFFF0000" // red
	colorHeaderBg  = "FF4472C4" // blue
	colorHeaderTxt = "FFFFFFFF"
)

func statusFill(status reconcile.Status) string {
	switch status {
	case reconcile.Unmapped:
		return colorUnmapped
	case reconcile.ExplicitNoMapping:
		return colorSentinel
	case reconcile.Valid:
		return colorValid
	default:
		return colorInvalid
	}
}

func headerStyle() *xlsx.Style {
	st := xlsx.NewStyle()
	st.Fill = *xlsx.NewFill("solid", colorHeaderBg, colorHeaderBg)
	st.ApplyFill = true
	st.Font.Bold = true
	st.Font.Color = colorHeaderTxt
	st.ApplyFont = true
	return st
}

func statusStyle(status reconcile.Status) *xlsx.Style {
	color := statusFill(status)
	st := xlsx.NewStyle()
	st.Fill = *xlsx.NewFill("solid", color, color)
	st.ApplyFill = true
	return st
}

// ExportMapping renders the full DePara table with the target code column
// color-coded by reconciliation status.
func ExportMapping(desc *entity.Descriptor, rows []mapping.Row, codes golden.CodeSet) (*xlsx.File, error) {
	f := xlsx.NewFile()
	s, err := f.AddSheet("DePara")
	if err != nil {
		return nil, eris.Wrap(err, "sheet: add sheet")
	}

	headers := desc.ExportHeaders()
	writeHeader(s, headers)
	widths := headerWidths(headers)

	codeCol := -1
	for i, name := range desc.FieldNames() {
		if name == desc.TargetCodeField {
			codeCol = i
		}
	}

	for _, row := range rows {
		r := s.AddRow()
		for i, name := range desc.FieldNames() {
			value := row.Get(name)
			cell := r.AddCell()
			cell.SetString(value)
			if i == codeCol {
				cell.SetStyle(statusStyle(reconcile.Classify(value, codes)))
			}
			widths[i] = max(widths[i], len(value))
		}
	}

	applyWidths(s, widths)
	return f, nil
}

// ExportFiltered renders a caller-supplied pre-serialized subset. Columns
// whose header resolves to the entity's target code field are color-coded;
// everything else is written as-is.
func ExportFiltered(desc *entity.Descriptor, headers []string, registros []map[string]string, codes golden.CodeSet) (*xlsx.File, error) {
	f := xlsx.NewFile()
	s, err := f.AddSheet("Filtrado")
	if err != nil {
		return nil, eris.Wrap(err, "sheet: add sheet")
	}

	writeHeader(s, headers)
	widths := headerWidths(headers)

	codeCol := -1
	codeField, _ := desc.FieldByName(desc.TargetCodeField)
	for i, h := range headers {
		for _, spelling := range codeField.Headers {
			if normalizeHeader(spelling) == normalizeHeader(h) {
				codeCol = i
			}
		}
	}

	for _, reg := range registros {
		r := s.AddRow()
		for i, h := range headers {
			value := reg[h]
			cell := r.AddCell()
			cell.SetString(value)
			if i == codeCol {
				cell.SetStyle(statusStyle(reconcile.Classify(value, codes)))
			}
			widths[i] = max(widths[i], len(value))
		}
	}

	applyWidths(s, widths)
	return f, nil
}

// ExportGolden renders the homologation table itself.
func ExportGolden(desc *entity.Descriptor, records []golden.Record) (*xlsx.File, error) {
	f := xlsx.NewFile()
	s, err := f.AddSheet("WF")
	if err != nil {
		return nil, eris.Wrap(err, "sheet: add sheet")
	}

	headers := []string{"Codigo"}
	if desc.GoldenDescColumn != "" {
		headers = append(headers, "Descricao")
	}
	if desc.GoldenActiveColumn != "" {
		headers = append(headers, "Ativo")
	}
	writeHeader(s, headers)
	widths := headerWidths(headers)

	for _, rec := range records {
		r := s.AddRow()
		r.AddCell().SetString(rec.Code)
		widths[0] = max(widths[0], len(rec.Code))
		if desc.GoldenDescColumn != "" {
			r.AddCell().SetString(rec.Description)
			widths[1] = max(widths[1], len(rec.Description))
		}
		if desc.GoldenActiveColumn != "" {
			cell := r.AddCell()
			if rec.Active {
				cell.SetString("S")
			} else {
				cell.SetString("N")
			}
		}
	}

	applyWidths(s, widths)
	return f, nil
}

// Write serializes the workbook.
func Write(f *xlsx.File, w io.Writer) error {
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "sheet: write")
	}
	return nil
}

func writeHeader(s *xlsx.Sheet, headers []string) {
	st := headerStyle()
	r := s.AddRow()
	for _, h := range headers {
		cell := r.AddCell()
		cell.SetString(h)
		cell.SetStyle(st)
	}
}

func headerWidths(headers []string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return widths
}

func applyWidths(s *xlsx.Sheet, widths []int) {
	for i, w := range widths {
		width := float64(w + 2)
		if width > maxColWidth {
			width = maxColWidth
		}
		s.SetColWidth(i, i, width)
	}
}
