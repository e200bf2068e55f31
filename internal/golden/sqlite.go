package golden

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

// SQLiteSource implements Source over database/sql for the standalone setup.
type SQLiteSource struct {
	db   *sql.DB
	desc *entity.Descriptor
}

// NewSQLite creates a SQLiteSource for the given entity descriptor.
func NewSQLite(db *sql.DB, desc *entity.Descriptor) *SQLiteSource {
	return &SQLiteSource{db: db, desc: desc}
}

func (s *SQLiteSource) ListCodes(ctx context.Context) CodeSet {
	query := fmt.Sprintf(
		"SELECT DISTINCT CAST(%q AS TEXT) FROM %q WHERE %q IS NOT NULL",
		s.desc.GoldenCodeColumn, s.desc.GoldenTable, s.desc.GoldenCodeColumn,
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		zap.L().Warn("golden codes unavailable", zap.String("entity", s.desc.Slug), zap.Error(err))
		return CodeSet{}
	}
	defer rows.Close()

	set := CodeSet{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			zap.L().Warn("golden codes scan failed", zap.String("entity", s.desc.Slug), zap.Error(err))
			return CodeSet{}
		}
		set[strings.TrimSpace(code)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		zap.L().Warn("golden codes read failed", zap.String("entity", s.desc.Slug), zap.Error(err))
		return CodeSet{}
	}
	return set
}

func (s *SQLiteSource) LookupDescription(ctx context.Context, code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" || s.desc.GoldenDescColumn == "" {
		return "", false
	}

	query := fmt.Sprintf(
		"SELECT CAST(%q AS TEXT) FROM %q WHERE CAST(%q AS TEXT) = ? LIMIT 1",
		s.desc.GoldenDescColumn, s.desc.GoldenTable, s.desc.GoldenCodeColumn,
	)
	var desc sql.NullString
	if err := s.db.QueryRowContext(ctx, query, code).Scan(&desc); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			zap.L().Warn("golden lookup failed",
				zap.String("entity", s.desc.Slug),
				zap.String("code", code),
				zap.Error(err),
			)
		}
		return "", false
	}
	if !desc.Valid {
		return "", false
	}
	return desc.String, true
}

func (s *SQLiteSource) ListRecords(ctx context.Context) ([]Record, error) {
	cols := []string{fmt.Sprintf("CAST(%q AS TEXT)", s.desc.GoldenCodeColumn)}
	if s.desc.GoldenDescColumn != "" {
		cols = append(cols, fmt.Sprintf("CAST(%q AS TEXT)", s.desc.GoldenDescColumn))
	}
	if s.desc.GoldenActiveColumn != "" {
		cols = append(cols, fmt.Sprintf("%q", s.desc.GoldenActiveColumn))
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %q WHERE %q IS NOT NULL ORDER BY %q",
		strings.Join(cols, ", "), s.desc.GoldenTable, s.desc.GoldenCodeColumn, s.desc.GoldenCodeColumn,
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "golden: list %s", s.desc.GoldenTable)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var desc sql.NullString
		active := true

		dest := []any{&rec.Code}
		if s.desc.GoldenDescColumn != "" {
			dest = append(dest, &desc)
		}
		if s.desc.GoldenActiveColumn != "" {
			dest = append(dest, &active)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "golden: scan %s", s.desc.GoldenTable)
		}
		rec.Description = desc.String
		rec.Active = active
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "golden: iterate %s", s.desc.GoldenTable)
	}
	return out, nil
}
