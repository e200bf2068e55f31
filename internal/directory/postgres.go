package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/refdata-tools/depara-admin/internal/db"
)

// PostgresStore implements Store over a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projetos (
	nome         TEXT PRIMARY KEY,
	banco_depara TEXT NOT NULL,
	banco_homo   TEXT NOT NULL
)`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "directory: migrate")
	}
	return nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT nome, banco_depara, banco_homo FROM projetos ORDER BY nome`)
	if err != nil {
		return nil, eris.Wrap(err, "directory: list projects")
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.Nome, &p.BancoDePara, &p.BancoHomo); err != nil {
			return nil, eris.Wrap(err, "directory: scan project")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "directory: iterate projects")
	}
	return out, nil
}

func (s *PostgresStore) Resolve(ctx context.Context, nome string) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx,
		`SELECT nome, banco_depara, banco_homo FROM projetos WHERE nome = $1`,
		nome,
	).Scan(&p.Nome, &p.BancoDePara, &p.BancoHomo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrProjectNotFound, "directory: %s", nome)
		}
		return nil, eris.Wrapf(err, "directory: resolve %s", nome)
	}
	return &p, nil
}
