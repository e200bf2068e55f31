package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/refdata-tools/depara-admin/internal/config"
	"github.com/refdata-tools/depara-admin/internal/db"
	"github.com/refdata-tools/depara-admin/internal/directory"
	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
)

// Stores builds the per-project store and golden source for an entity.
// The indirection keeps handlers testable without a database.
type Stores interface {
	Mapping(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (mapping.Store, error)
	Golden(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (golden.Source, error)
}

// ManagerStores resolves stores through the connection manager, caching
// golden code sets and rate-limiting per homologation database.
type ManagerStores struct {
	manager *db.Manager
	cfg     config.GoldenConfig

	mu       sync.Mutex
	cached   map[string]*golden.Cached
	limiters map[string]*rate.Limiter
}

// NewManagerStores creates a ManagerStores.
func NewManagerStores(manager *db.Manager, cfg config.GoldenConfig) *ManagerStores {
	return &ManagerStores{
		manager:  manager,
		cfg:      cfg,
		cached:   map[string]*golden.Cached{},
		limiters: map[string]*rate.Limiter{},
	}
}

func (ms *ManagerStores) Mapping(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (mapping.Store, error) {
	switch ms.manager.Driver() {
	case db.DriverSQLite:
		sdb, err := ms.manager.SQLite(p.BancoDePara)
		if err != nil {
			return nil, err
		}
		return mapping.NewSQLite(sdb, desc), nil
	default:
		pool, err := ms.manager.Pool(ctx, p.BancoDePara)
		if err != nil {
			return nil, err
		}
		return mapping.NewPostgres(pool, desc), nil
	}
}

func (ms *ManagerStores) Golden(ctx context.Context, p *directory.Project, desc *entity.Descriptor) (golden.Source, error) {
	key := p.BancoHomo + "/" + desc.Slug

	ms.mu.Lock()
	if c, ok := ms.cached[key]; ok {
		ms.mu.Unlock()
		return c, nil
	}
	limiter, ok := ms.limiters[p.BancoHomo]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(ms.cfg.LookupsPerSecond), ms.cfg.LookupBurst)
		ms.limiters[p.BancoHomo] = limiter
	}
	ms.mu.Unlock()

	var src golden.Source
	switch ms.manager.Driver() {
	case db.DriverSQLite:
		sdb, err := ms.manager.SQLite(p.BancoHomo)
		if err != nil {
			return nil, err
		}
		src = golden.NewSQLite(sdb, desc)
	default:
		pool, err := ms.manager.Pool(ctx, p.BancoHomo)
		if err != nil {
			return nil, err
		}
		src = golden.NewPostgres(pool, desc, limiter)
	}

	c := golden.NewCached(src, time.Duration(ms.cfg.CacheTTLSecs)*time.Second)
	ms.mu.Lock()
	ms.cached[key] = c
	ms.mu.Unlock()
	return c, nil
}
