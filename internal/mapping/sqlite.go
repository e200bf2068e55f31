package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/entity"
)

// SQLiteStore implements Store over database/sql with the modernc sqlite
// driver. Used by the standalone setup; semantics mirror PostgresStore.
type SQLiteStore struct {
	db   *sql.DB
	desc *entity.Descriptor
}

// NewSQLite creates a SQLiteStore for the given entity descriptor.
func NewSQLite(db *sql.DB, desc *entity.Descriptor) *SQLiteStore {
	return &SQLiteStore{db: db, desc: desc}
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	cols := make([]string, 0, len(s.desc.Fields)+1)
	cols = append(cols, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, f := range s.desc.Fields {
		cols = append(cols, fmt.Sprintf("%q TEXT", f.Name))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", s.desc.MappingTable, strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "mapping: migrate %s", s.desc.MappingTable)
	}

	keyCols := make([]string, len(s.desc.NaturalKey))
	for i, k := range s.desc.NaturalKey {
		keyCols[i] = fmt.Sprintf("%q", k)
	}
	idx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %q ON %q (%s)",
		"idx_"+s.desc.MappingTable+"_key", s.desc.MappingTable, strings.Join(keyCols, ", "),
	)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return eris.Wrapf(err, "mapping: index %s", s.desc.MappingTable)
	}
	return nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]Row, error) {
	names := s.desc.FieldNames()
	cols := make([]string, 0, len(names)+1)
	cols = append(cols, "id")
	for _, n := range names {
		cols = append(cols, fmt.Sprintf("%q", n))
	}

	query := fmt.Sprintf("SELECT %s FROM %q ORDER BY id", strings.Join(cols, ", "), s.desc.MappingTable)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: list %s", s.desc.MappingTable)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{Fields: make(map[string]string, len(names))}
		vals := make([]sql.NullString, len(names))
		dest := make([]any, 0, len(names)+1)
		dest = append(dest, &r.ID)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "mapping: scan %s", s.desc.MappingTable)
		}
		for i, n := range names {
			if vals[i].Valid {
				r.Fields[n] = vals[i].String
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "mapping: iterate %s", s.desc.MappingTable)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateField(ctx context.Context, id int64, field, value string) error {
	if !s.desc.IsEditable(field) {
		return eris.Wrapf(ErrFieldNotAllowed, "mapping: %s.%s", s.desc.Slug, field)
	}

	f, _ := s.desc.FieldByName(field)
	query := fmt.Sprintf("UPDATE %q SET %q = ? WHERE id = ?", s.desc.MappingTable, f.Name)
	res, err := s.db.ExecContext(ctx, query, nullable(value), id)
	if err != nil {
		return eris.Wrapf(err, "mapping: update %s.%s", s.desc.MappingTable, field)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "mapping: update %s rows affected", s.desc.MappingTable)
	}
	if n == 0 {
		return eris.Wrapf(ErrRecordNotFound, "mapping: %s id %d", s.desc.Slug, id)
	}
	return nil
}

func (s *SQLiteStore) Import(ctx context.Context, records []Record, opts ImportOptions) (*ImportResult, error) {
	opts = opts.withDefaults()
	result := &ImportResult{}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: import %s begin", s.desc.MappingTable)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	inBatch := 0
	for i, rec := range records {
		// A failed statement does not poison a sqlite transaction, so a
		// plain error check is enough for per-row tolerance here.
		inserted, err := s.upsertTx(ctx, tx, rec)
		if err != nil {
			result.Failed++
			if len(result.Errors) < opts.MaxRowErrors {
				// Spreadsheet row numbering, header on row 1.
				result.Errors = append(result.Errors, RowError{RowNumber: i + 2, Message: err.Error()})
			}
			zap.L().Warn("import row failed",
				zap.String("entity", s.desc.Slug),
				zap.Int("row", i+2),
				zap.Error(err),
			)
			continue
		}
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}

		inBatch++
		if inBatch >= opts.BatchCommitRows {
			if err := tx.Commit(); err != nil {
				tx = nil
				return nil, eris.Wrapf(err, "mapping: import %s commit batch", s.desc.MappingTable)
			}
			tx, err = s.db.BeginTx(ctx, nil)
			if err != nil {
				return nil, eris.Wrapf(err, "mapping: import %s begin batch", s.desc.MappingTable)
			}
			inBatch = 0
		}
	}

	if err := tx.Commit(); err != nil {
		tx = nil
		return nil, eris.Wrapf(err, "mapping: import %s commit", s.desc.MappingTable)
	}
	tx = nil
	return result, nil
}

func (s *SQLiteStore) upsertTx(ctx context.Context, tx *sql.Tx, rec Record) (bool, error) {
	where := make([]string, len(s.desc.NaturalKey))
	keyArgs := make([]any, len(s.desc.NaturalKey))
	for i, k := range s.desc.NaturalKey {
		where[i] = fmt.Sprintf("%q = ?", k)
		keyArgs[i] = rec[k]
	}

	var id int64
	query := fmt.Sprintf("SELECT id FROM %q WHERE %s", s.desc.MappingTable, strings.Join(where, " AND "))
	err := tx.QueryRowContext(ctx, query, keyArgs...).Scan(&id)
	switch {
	case err == nil:
		sets := make([]string, 0, len(rec))
		args := make([]any, 0, len(rec)+1)
		for _, f := range s.desc.Fields {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			sets = append(sets, fmt.Sprintf("%q = ?", f.Name))
			args = append(args, nullable(v))
		}
		if len(sets) == 0 {
			return false, nil
		}
		args = append(args, id)
		update := fmt.Sprintf("UPDATE %q SET %s WHERE id = ?", s.desc.MappingTable, strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, update, args...); err != nil {
			return false, eris.Wrapf(err, "mapping: upsert update %s", s.desc.MappingTable)
		}
		return false, nil

	case errors.Is(err, sql.ErrNoRows):
		cols := make([]string, 0, len(rec))
		marks := make([]string, 0, len(rec))
		args := make([]any, 0, len(rec))
		for _, f := range s.desc.Fields {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			cols = append(cols, fmt.Sprintf("%q", f.Name))
			marks = append(marks, "?")
			args = append(args, nullable(v))
		}
		insert := fmt.Sprintf(
			"INSERT INTO %q (%s) VALUES (%s)",
			s.desc.MappingTable, strings.Join(cols, ", "), strings.Join(marks, ", "),
		)
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return false, eris.Wrapf(err, "mapping: upsert insert %s", s.desc.MappingTable)
		}
		return true, nil

	default:
		return false, eris.Wrapf(err, "mapping: upsert lookup %s", s.desc.MappingTable)
	}
}
