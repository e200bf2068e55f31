package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/refdata-tools/depara-admin/internal/db"
	"github.com/refdata-tools/depara-admin/internal/entity"
)

// PostgresStore implements Store over a pgx pool for one entity.
type PostgresStore struct {
	pool db.Pool
	desc *entity.Descriptor
}

// NewPostgres creates a PostgresStore for the given entity descriptor.
func NewPostgres(pool db.Pool, desc *entity.Descriptor) *PostgresStore {
	return &PostgresStore{pool: pool, desc: desc}
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.desc.MappingTable}.Sanitize()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	cols := make([]string, 0, len(s.desc.Fields)+1)
	cols = append(cols, "id BIGSERIAL PRIMARY KEY")
	for _, f := range s.desc.Fields {
		cols = append(cols, fmt.Sprintf("%s TEXT", pgx.Identifier{f.Name}.Sanitize()))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.table(), strings.Join(cols, ", "))
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return eris.Wrapf(err, "mapping: migrate %s", s.desc.MappingTable)
	}

	keyCols := make([]string, len(s.desc.NaturalKey))
	for i, k := range s.desc.NaturalKey {
		keyCols[i] = pgx.Identifier{k}.Sanitize()
	}
	idx := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		pgx.Identifier{"idx_" + s.desc.MappingTable + "_key"}.Sanitize(),
		s.table(),
		strings.Join(keyCols, ", "),
	)
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return eris.Wrapf(err, "mapping: index %s", s.desc.MappingTable)
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]Row, error) {
	names := s.desc.FieldNames()
	cols := make([]string, 0, len(names)+1)
	cols = append(cols, "id")
	for _, n := range names {
		cols = append(cols, pgx.Identifier{n}.Sanitize())
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", strings.Join(cols, ", "), s.table())
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: list %s", s.desc.MappingTable)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{Fields: make(map[string]string, len(names))}
		vals := make([]*string, len(names))
		dest := make([]any, 0, len(names)+1)
		dest = append(dest, &r.ID)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "mapping: scan %s", s.desc.MappingTable)
		}
		for i, n := range names {
			if vals[i] != nil {
				r.Fields[n] = *vals[i]
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "mapping: iterate %s", s.desc.MappingTable)
	}
	return out, nil
}

func (s *PostgresStore) UpdateField(ctx context.Context, id int64, field, value string) error {
	if !s.desc.IsEditable(field) {
		return eris.Wrapf(ErrFieldNotAllowed, "mapping: %s.%s", s.desc.Slug, field)
	}

	// The column name comes from the descriptor, never from the request.
	f, _ := s.desc.FieldByName(field)
	query := fmt.Sprintf(
		"UPDATE %s SET %s = $1 WHERE id = $2",
		s.table(),
		pgx.Identifier{f.Name}.Sanitize(),
	)
	tag, err := s.pool.Exec(ctx, query, nullable(value), id)
	if err != nil {
		return eris.Wrapf(err, "mapping: update %s.%s", s.desc.MappingTable, field)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRecordNotFound, "mapping: %s id %d", s.desc.Slug, id)
	}
	return nil
}

func (s *PostgresStore) Import(ctx context.Context, records []Record, opts ImportOptions) (*ImportResult, error) {
	opts = opts.withDefaults()
	result := &ImportResult{}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "mapping: import %s begin", s.desc.MappingTable)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	inBatch := 0
	for i, rec := range records {
		// Row numbers follow the spreadsheet: data starts below the header
		// on row 2.
		if err := s.upsertOne(ctx, tx, rec, i+2, result, opts); err != nil {
			return nil, err
		}

		inBatch++
		if inBatch >= opts.BatchCommitRows {
			if err := tx.Commit(ctx); err != nil {
				tx = nil
				return nil, eris.Wrapf(err, "mapping: import %s commit batch", s.desc.MappingTable)
			}
			tx, err = s.pool.Begin(ctx)
			if err != nil {
				return nil, eris.Wrapf(err, "mapping: import %s begin batch", s.desc.MappingTable)
			}
			inBatch = 0
		}
	}

	if err := tx.Commit(ctx); err != nil {
		tx = nil
		return nil, eris.Wrapf(err, "mapping: import %s commit", s.desc.MappingTable)
	}
	tx = nil
	return result, nil
}

// upsertOne runs one record inside a savepoint so a row failure rolls back
// only that row and the import continues.
func (s *PostgresStore) upsertOne(ctx context.Context, tx pgx.Tx, rec Record, rowNum int, result *ImportResult, opts ImportOptions) error {
	inner, err := tx.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "mapping: import %s savepoint", s.desc.MappingTable)
	}

	inserted, err := s.upsertTx(ctx, inner, rec)
	if err != nil {
		_ = inner.Rollback(ctx)
		result.Failed++
		if len(result.Errors) < opts.MaxRowErrors {
			result.Errors = append(result.Errors, RowError{RowNumber: rowNum, Message: err.Error()})
		}
		zap.L().Warn("import row failed",
			zap.String("entity", s.desc.Slug),
			zap.Int("row", rowNum),
			zap.Error(err),
		)
		return nil
	}
	if err := inner.Commit(ctx); err != nil {
		return eris.Wrapf(err, "mapping: import %s release savepoint", s.desc.MappingTable)
	}

	if inserted {
		result.Inserted++
	} else {
		result.Updated++
	}
	return nil
}

// upsertTx looks the record up by natural key and updates or inserts.
// Returns true on insert.
func (s *PostgresStore) upsertTx(ctx context.Context, tx pgx.Tx, rec Record) (bool, error) {
	where := make([]string, len(s.desc.NaturalKey))
	keyArgs := make([]any, len(s.desc.NaturalKey))
	for i, k := range s.desc.NaturalKey {
		where[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{k}.Sanitize(), i+1)
		keyArgs[i] = rec[k]
	}

	var id int64
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s", s.table(), strings.Join(where, " AND "))
	err := tx.QueryRow(ctx, query, keyArgs...).Scan(&id)
	switch {
	case err == nil:
		sets := make([]string, 0, len(rec))
		args := make([]any, 0, len(rec)+1)
		for _, f := range s.desc.Fields {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{f.Name}.Sanitize(), len(args)+1))
			args = append(args, nullable(v))
		}
		if len(sets) == 0 {
			return false, nil
		}
		args = append(args, id)
		update := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", s.table(), strings.Join(sets, ", "), len(args))
		if _, err := tx.Exec(ctx, update, args...); err != nil {
			return false, eris.Wrapf(err, "mapping: upsert update %s", s.desc.MappingTable)
		}
		return false, nil

	case errors.Is(err, pgx.ErrNoRows):
		cols := make([]string, 0, len(rec))
		marks := make([]string, 0, len(rec))
		args := make([]any, 0, len(rec))
		for _, f := range s.desc.Fields {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			cols = append(cols, pgx.Identifier{f.Name}.Sanitize())
			marks = append(marks, fmt.Sprintf("$%d", len(args)+1))
			args = append(args, nullable(v))
		}
		insert := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			s.table(), strings.Join(cols, ", "), strings.Join(marks, ", "),
		)
		if _, err := tx.Exec(ctx, insert, args...); err != nil {
			return false, eris.Wrapf(err, "mapping: upsert insert %s", s.desc.MappingTable)
		}
		return true, nil

	default:
		return false, eris.Wrapf(err, "mapping: upsert lookup %s", s.desc.MappingTable)
	}
}

// nullable stores empty strings as NULL so "unset" round-trips.
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
