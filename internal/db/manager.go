package db

import (
	"context"
	"database/sql"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Driver selects the storage backend for all resolved databases.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Manager resolves logical database names (the "banco" attributes kept in
// the directory table) to open connections, one cached handle per name.
// DePara and homologation databases on the same server share the manager.
type Manager struct {
	driver  Driver
	baseURL string // postgres connection string whose database is replaced per name
	dataDir string // sqlite file directory

	poolCfg PoolConfig

	mu    sync.Mutex
	pools map[string]*managedPool
	dbs   map[string]*sql.DB
}

type managedPool struct {
	pool  Pool
	close func()
}

// NewManager creates a Manager for the configured driver.
func NewManager(driver, baseURL, dataDir string, poolCfg PoolConfig) (*Manager, error) {
	switch Driver(driver) {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, eris.Errorf("db: unknown driver %q", driver)
	}
	return &Manager{
		driver:  Driver(driver),
		baseURL: baseURL,
		dataDir: dataDir,
		poolCfg: poolCfg,
		pools:   map[string]*managedPool{},
		dbs:     map[string]*sql.DB{},
	}, nil
}

// Driver reports the configured backend.
func (m *Manager) Driver() Driver {
	return m.driver
}

// Pool returns the cached pgx pool for a logical database name, opening it
// on first use. Only valid for the postgres driver.
func (m *Manager) Pool(ctx context.Context, name string) (Pool, error) {
	if m.driver != DriverPostgres {
		return nil, eris.New("db: pgx pool requested on non-postgres driver")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pools[name]; ok {
		return p.pool, nil
	}

	connString, err := replaceDatabase(m.baseURL, name)
	if err != nil {
		return nil, err
	}
	pool, err := NewPool(ctx, connString, m.poolCfg)
	if err != nil {
		return nil, eris.Wrapf(err, "db: open database %s", name)
	}
	m.pools[name] = &managedPool{pool: pool, close: pool.Close}
	zap.L().Debug("opened database pool", zap.String("database", name))
	return pool, nil
}

// SQLite returns the cached sql.DB for a logical database name, opening the
// file under the data directory on first use. Only valid for the sqlite
// driver.
func (m *Manager) SQLite(name string) (*sql.DB, error) {
	if m.driver != DriverSQLite {
		return nil, eris.New("db: sqlite handle requested on non-sqlite driver")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[name]; ok {
		return db, nil
	}

	path := filepath.Join(m.dataDir, name+".db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "db: open sqlite %s", path)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "db: exec %s", pragma)
		}
	}
	m.dbs[name] = db
	zap.L().Debug("opened sqlite database", zap.String("path", path))
	return db, nil
}

// Close releases every open connection. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, p := range m.pools {
		p.close()
		delete(m.pools, name)
	}
	for name, db := range m.dbs {
		db.Close()
		delete(m.dbs, name)
	}
}

// replaceDatabase swaps the database component of a postgres connection URL.
func replaceDatabase(connString, name string) (string, error) {
	if strings.Contains(connString, "://") {
		u, err := url.Parse(connString)
		if err != nil {
			return "", eris.Wrap(err, "db: parse base url")
		}
		u.Path = "/" + name
		return u.String(), nil
	}

	// key=value DSN form
	parts := strings.Fields(connString)
	out := make([]string, 0, len(parts)+1)
	replaced := false
	for _, p := range parts {
		if strings.HasPrefix(p, "dbname=") {
			out = append(out, "dbname="+name)
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, "dbname="+name)
	}
	return strings.Join(out, " "), nil
}
