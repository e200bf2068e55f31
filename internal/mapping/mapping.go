// Package mapping provides CRUD access to the per-entity DePara tables.
// Rows carry their columns as a field map so one store implementation
// serves every entity descriptor.
package mapping

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrFieldNotAllowed is returned when an update targets a field outside the
// entity's edit allow-list. No SQL is executed in that case.
var ErrFieldNotAllowed = eris.New("mapping: field not allowed")

// ErrRecordNotFound is returned when an update matches no row.
var ErrRecordNotFound = eris.New("mapping: record not found")

// Row is one row of a DePara table. Fields is keyed by the descriptor's
// internal field names; absent and empty values are both "".
type Row struct {
	ID     int64
	Fields map[string]string
}

// Get returns a field value, "" when unset.
func (r Row) Get(field string) string {
	return r.Fields[field]
}

// Record is one normalized import record, keyed like Row.Fields.
type Record map[string]string

// RowError describes a single failed row during an import. RowNumber uses
// spreadsheet numbering: the header is row 1, the first record row 2.
type RowError struct {
	RowNumber int    `json:"row"`
	Message   string `json:"message"`
}

// ImportResult aggregates an import run. Errors is capped by the caller's
// configured maximum; Failed counts every failure regardless of the cap.
type ImportResult struct {
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

// ImportOptions tunes the upsert loop.
type ImportOptions struct {
	// BatchCommitRows bounds transaction size: the import commits and opens
	// a fresh transaction every N rows. Defaults to 100.
	BatchCommitRows int
	// MaxRowErrors caps the error list in the result. Defaults to 10.
	MaxRowErrors int
}

func (o ImportOptions) withDefaults() ImportOptions {
	if o.BatchCommitRows <= 0 {
		o.BatchCommitRows = 100
	}
	if o.MaxRowErrors <= 0 {
		o.MaxRowErrors = 10
	}
	return o
}

// Store is the persistence interface for one entity's DePara table.
type Store interface {
	// ListAll returns every row in engine order.
	ListAll(ctx context.Context) ([]Row, error)

	// UpdateField sets a single allow-listed field by primary key.
	// Returns ErrFieldNotAllowed before touching the database for fields
	// outside the allow-list, and ErrRecordNotFound on zero affected rows.
	UpdateField(ctx context.Context, id int64, field, value string) error

	// Import upserts records by the entity's natural key, committing every
	// BatchCommitRows rows and tolerating per-row failures.
	Import(ctx context.Context, records []Record, opts ImportOptions) (*ImportResult, error)

	// Migrate creates the entity's DePara table when absent.
	Migrate(ctx context.Context) error
}
