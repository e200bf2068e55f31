package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/refdata-tools/depara-admin/internal/db"
	"github.com/refdata-tools/depara-admin/internal/directory"
	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/server"
)

// cmdEnv wires the shared dependencies every subcommand needs: the connection
// manager, the entity registry and the project directory.
type cmdEnv struct {
	Manager  *db.Manager
	Registry *entity.Registry
	Dir      directory.Store
	Stores   *server.ManagerStores
}

func newEnv(ctx context.Context) (*cmdEnv, error) {
	manager, err := db.NewManager(
		cfg.Directory.Driver,
		cfg.Directory.DatabaseURL,
		cfg.Directory.DataDir,
		db.PoolConfig{MaxConns: cfg.Pool.MaxConns, MinConns: cfg.Pool.MinConns},
	)
	if err != nil {
		return nil, err
	}

	registry := entity.NewRegistry()
	if cfg.Entities.Path != "" {
		if err := registry.LoadOverlay(cfg.Entities.Path); err != nil {
			manager.Close()
			return nil, err
		}
	}

	dir, err := directoryStore(ctx, manager)
	if err != nil {
		manager.Close()
		return nil, err
	}

	return &cmdEnv{
		Manager:  manager,
		Registry: registry,
		Dir:      dir,
		Stores:   server.NewManagerStores(manager, cfg.Golden),
	}, nil
}

func (e *cmdEnv) Close() {
	e.Manager.Close()
}

// resolveProject looks up a project or fails with the known names listed.
func (e *cmdEnv) resolveProject(ctx context.Context, nome string) (*directory.Project, error) {
	p, err := e.Dir.Resolve(ctx, nome)
	if err == nil {
		return p, nil
	}
	projects, lerr := e.Dir.ListProjects(ctx)
	if lerr != nil {
		return nil, err
	}
	names := make([]string, 0, len(projects))
	for _, pr := range projects {
		names = append(names, pr.Nome)
	}
	return nil, eris.Wrapf(err, "projetos conhecidos: %v", names)
}

func directoryStore(ctx context.Context, manager *db.Manager) (directory.Store, error) {
	switch manager.Driver() {
	case db.DriverSQLite:
		handle, err := manager.SQLite(cfg.Directory.Database)
		if err != nil {
			return nil, err
		}
		return directory.NewSQLite(handle), nil
	default:
		pool, err := manager.Pool(ctx, cfg.Directory.Database)
		if err != nil {
			return nil, err
		}
		return directory.NewPostgres(pool), nil
	}
}
