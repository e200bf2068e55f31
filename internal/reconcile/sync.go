package reconcile

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/refdata-tools/depara-admin/internal/entity"
	"github.com/refdata-tools/depara-admin/internal/golden"
	"github.com/refdata-tools/depara-admin/internal/mapping"
)

// Syncer refreshes mirrored descriptions from the golden source. Runs
// unconditionally after imports; after single edits only for entities with
// SyncOnEdit set.
type Syncer struct {
	workers int
}

// NewSyncer creates a Syncer with a bounded lookup concurrency.
func NewSyncer(workers int) *Syncer {
	if workers <= 0 {
		workers = 4
	}
	return &Syncer{workers: workers}
}

// SyncDescriptions looks up the golden description for every row whose code
// classifies as Valid or Invalid and updates the row when the description
// differs. Blank golden descriptions never overwrite an existing value.
// Idempotent: a second run against an unchanged golden source updates
// nothing. Returns the number of rows updated.
func (s *Syncer) SyncDescriptions(ctx context.Context, desc *entity.Descriptor, rows []mapping.Row, store mapping.Store, src golden.Source) (int, error) {
	if !desc.HasDescription() {
		return 0, nil
	}

	codes := src.ListCodes(ctx)
	if len(codes) == 0 {
		// Unavailable golden source: syncing against it would be noise.
		zap.L().Warn("description sync skipped, golden codes unavailable",
			zap.String("entity", desc.Slug))
		return 0, nil
	}

	var updated atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, row := range rows {
		code := NormalizeCode(row.Get(desc.TargetCodeField))
		status := Classify(code, codes)
		if status == Unmapped || status == ExplicitNoMapping {
			continue
		}

		row := row
		g.Go(func() error {
			goldenDesc, ok := src.LookupDescription(gctx, code)
			if !ok || goldenDesc == "" {
				return nil
			}
			if goldenDesc == row.Get(desc.TargetDescField) {
				return nil
			}
			if err := store.UpdateField(gctx, row.ID, desc.TargetDescField, goldenDesc); err != nil {
				return eris.Wrapf(err, "reconcile: sync %s id %d", desc.Slug, row.ID)
			}
			updated.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(updated.Load()), err
	}

	n := int(updated.Load())
	if n > 0 {
		zap.L().Info("descriptions synced",
			zap.String("entity", desc.Slug),
			zap.Int("updated", n),
		)
	}
	return n, nil
}

// SyncAfterEdit applies the per-entity post-edit policy for a single row.
// No-op when the entity does not sync on edit or the edited field is not
// the target code.
func (s *Syncer) SyncAfterEdit(ctx context.Context, desc *entity.Descriptor, field string, id int64, value string, store mapping.Store, src golden.Source) (bool, error) {
	if !desc.SyncOnEdit || field != desc.TargetCodeField {
		return false, nil
	}

	code := NormalizeCode(value)
	if code == "" || code == Sentinel {
		return false, nil
	}

	goldenDesc, ok := src.LookupDescription(ctx, code)
	if !ok || goldenDesc == "" {
		return false, nil
	}
	if err := store.UpdateField(ctx, id, desc.TargetDescField, goldenDesc); err != nil {
		return false, eris.Wrapf(err, "reconcile: sync after edit %s id %d", desc.Slug, id)
	}
	return true, nil
}
