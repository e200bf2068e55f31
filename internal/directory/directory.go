// Package directory reads the directory database that maps each project
// (tenant) to its DePara database and its homologation database names.
package directory

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrProjectNotFound is returned when a project is absent from the
// directory table.
var ErrProjectNotFound = eris.New("directory: project not found")

// Project is one directory row.
type Project struct {
	Nome        string `json:"nome"`
	BancoDePara string `json:"banco_depara"`
	BancoHomo   string `json:"banco_homo"`
}

// Store reads the projetos directory table.
type Store interface {
	// ListProjects returns every registered project.
	ListProjects(ctx context.Context) ([]Project, error)

	// Resolve returns the database names for one project, or
	// ErrProjectNotFound.
	Resolve(ctx context.Context, nome string) (*Project, error)

	// Migrate creates the directory table when absent.
	Migrate(ctx context.Context) error
}
