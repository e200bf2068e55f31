package golden

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/refdata-tools/depara-admin/internal/db"
	"github.com/refdata-tools/depara-admin/internal/entity"
)

// PostgresSource implements Source over a pgx pool for one entity's
// homologation table. Lookups go through a courtesy rate limiter since the
// per-code endpoint is user-driven, and a circuit breaker keeps soft-fail
// reads from hammering a homologation server that is down.
type PostgresSource struct {
	pool    db.Pool
	desc    *entity.Descriptor
	limiter *rate.Limiter
	breaker *Breaker
}

// NewPostgres creates a PostgresSource. A nil limiter disables rate limiting.
func NewPostgres(pool db.Pool, desc *entity.Descriptor, limiter *rate.Limiter) *PostgresSource {
	return &PostgresSource{pool: pool, desc: desc, limiter: limiter, breaker: NewBreaker(0, 0)}
}

func (s *PostgresSource) table() string {
	return pgx.Identifier{s.desc.GoldenTable}.Sanitize()
}

func (s *PostgresSource) codeCol() string {
	return pgx.Identifier{s.desc.GoldenCodeColumn}.Sanitize()
}

func (s *PostgresSource) ListCodes(ctx context.Context) CodeSet {
	if err := s.breaker.Allow(); err != nil {
		return CodeSet{}
	}

	query := fmt.Sprintf(
		"SELECT DISTINCT %s::text FROM %s WHERE %s IS NOT NULL",
		s.codeCol(), s.table(), s.codeCol(),
	)
	rows, err := s.pool.Query(ctx, query)
	s.breaker.Record(err)
	if err != nil {
		zap.L().Warn("golden codes unavailable",
			zap.String("entity", s.desc.Slug),
			zap.Error(err),
		)
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

func (s *PostgresSource) LookupDescription(ctx context.Context, code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" || s.desc.GoldenDescColumn == "" {
		return "", false
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", false
		}
	}
	if err := s.breaker.Allow(); err != nil {
		return "", false
	}

	query := fmt.Sprintf(
		"SELECT %s::text FROM %s WHERE %s::text = $1 LIMIT 1",
		pgx.Identifier{s.desc.GoldenDescColumn}.Sanitize(), s.table(), s.codeCol(),
	)
	var desc *string
	if err := s.pool.QueryRow(ctx, query, code).Scan(&desc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.breaker.Record(nil)
		} else {
			s.breaker.Record(err)
			zap.L().Warn("golden lookup failed",
				zap.String("entity", s.desc.Slug),
				zap.String("code", code),
				zap.Error(err),
			)
		}
		return "", false
	}
	s.breaker.Record(nil)
	if desc == nil {
		return "", false
	}
	return *desc, true
}

func (s *PostgresSource) ListRecords(ctx context.Context) ([]Record, error) {
	if err := s.breaker.Allow(); err != nil {
		return nil, err
	}

	cols := []string{s.codeCol() + "::text"}
	if s.desc.GoldenDescColumn != "" {
		cols = append(cols, pgx.Identifier{s.desc.GoldenDescColumn}.Sanitize()+"::text")
	}
	if s.desc.GoldenActiveColumn != "" {
		cols = append(cols, pgx.Identifier{s.desc.GoldenActiveColumn}.Sanitize())
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		strings.Join(cols, ", "), s.table(), s.codeCol(), s.codeCol(),
	)
	rows, err := s.pool.Query(ctx, query)
	s.breaker.Record(err)
	if err != nil {
		return nil, eris.Wrapf(err, "golden: list %s", s.desc.GoldenTable)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var desc *string
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
		if desc != nil {
			rec.Description = *desc
		}
		rec.Active = active
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "golden: iterate %s", s.desc.GoldenTable)
	}
	return out, nil
}
