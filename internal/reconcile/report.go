package reconcile

import (
	"context"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
)

// StaleRow is a row whose stored description no longer matches the golden
// source — the observable form of the accepted cross-database consistency
// window.
type StaleRow struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Stored      string `json:"stored"`
	GoldenValue string `json:"golden"`
}

// Report summarizes the reconciliation state of one entity's DePara table.
type Report struct {
	Entity   string         `json:"entity"`
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	// GoldenAvailable is false when the code set came back empty; the
	// counts then reflect "unknown", not "everything invalid".
	GoldenAvailable bool       `json:"golden_available"`
	Stale           []StaleRow `json:"stale,omitempty"`
}

// BuildReport classifies every row and, for entities that mirror a
// description, lists rows whose stored description drifted from the golden
// value.
func BuildReport(ctx context.Context, desc *entity.Descriptor, rows []mapping.Row, src golden.Source) *Report {
	codes := src.ListCodes(ctx)

	rep := &Report{
		Entity:          desc.Slug,
		Total:           len(rows),
		ByStatus:        map[string]int{},
		GoldenAvailable: len(codes) > 0,
	}

	for _, row := range rows {
		code := NormalizeCode(row.Get(desc.TargetCodeField))
		status := Classify(code, codes)
		rep.ByStatus[status.String()]++

		if !rep.GoldenAvailable || status != Valid || !desc.HasDescription() {
			continue
		}
		goldenDesc, ok := src.LookupDescription(ctx, code)
		if !ok || goldenDesc == "" {
			continue
		}
		if stored := row.Get(desc.TargetDescField); stored != goldenDesc {
			rep.Stale = append(rep.Stale, StaleRow{
				ID:          row.ID,
				Code:        code,
				Stored:      stored,
				GoldenValue: goldenDesc,
			})
		}
	}
	return rep
}
