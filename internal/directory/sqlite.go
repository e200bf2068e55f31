package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
)

// SQLiteStore implements Store over database/sql for the standalone setup.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLiteStore.
func NewSQLite(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projetos (
	nome         TEXT PRIMARY KEY,
	banco_depara TEXT NOT NULL,
	banco_homo   TEXT NOT NULL
)`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "directory: migrate")
	}
	return nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *SQLiteStore) Resolve(ctx context.Context, nome string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx,
		`SELECT nome, banco_depara, banco_homo FROM projetos WHERE nome = ?`,
		nome,
	).Scan(&p.Nome, &p.BancoDePara, &p.BancoHomo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrProjectNotFound, "directory: %s", nome)
		}
		return nil, eris.Wrapf(err, "directory: resolve %s", nome)
	}
	return &p, nil
}
