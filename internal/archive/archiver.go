package archive

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/store"
)

// Archiver watches status transitions per asset and freezes a copy of
// the path the instant an asset transitions into offline. The snapshot
// overwrites any prior one; transitions out of offline leave it alone.
type Archiver struct {
	store store.PathStore
	db    *store.ArchiveDB // nil when the durable archive is disabled
	log   *logger.Logger

	mu   sync.Mutex
	last map[string]domain.Status
}

func NewArchiver(ps store.PathStore, db *store.ArchiveDB, log *logger.Logger) *Archiver {
	return &Archiver{
		store: ps,
		db:    db,
		log:   log,
		last:  make(map[string]domain.Status),
	}
}

// Observe records the freshly derived status for an asset, capturing a
// snapshot when a known non-offline status just became offline. Returns
// true when the status differs from the last observed one.
func (a *Archiver) Observe(ctx context.Context, id string, st domain.Status, path []domain.Position) bool {
	a.mu.Lock()
	prev, seen := a.last[id]
	a.last[id] = st
	a.mu.Unlock()

	changed := !seen || prev != st
	if !changed {
		return false
	}

	// A transition from an unknown prior status (first observation after
	// startup) is not a shutdown, so no capture for it.
	if seen && prev != domain.StatusOffline && st == domain.StatusOffline {
		a.capture(ctx, id, path)
	}

	return true
}

// LastStatus returns the most recently observed status for an asset.
func (a *Archiver) LastStatus(id string) (domain.Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.last[id]
	return st, ok
}

func (a *Archiver) capture(ctx context.Context, id string, path []domain.Position) {
	frozen := make([]domain.Position, len(path))
	copy(frozen, path)

	snap := domain.Snapshot{
		AssetID:      id,
		CapturedPath: frozen,
		CapturedAt:   time.Now().UnixMilli(),
	}

	if err := a.store.SetSnapshot(ctx, snap); err != nil {
		a.log.Error("snapshot capture failed for %s: %v", id, err)
		return
	}
	metrics.SnapshotsCaptured.Add(1)
	a.log.Info("captured snapshot for %s (%d points)", id, len(frozen))

	if a.db != nil {
		pathJSON, err := json.Marshal(frozen)
		if err != nil {
			a.log.Error("snapshot encode failed for %s: %v", id, err)
			return
		}
		if err := a.db.InsertSnapshot(ctx, snap, pathJSON); err != nil {
			a.log.Error("durable snapshot insert failed for %s: %v", id, err)
		}
	}
}
