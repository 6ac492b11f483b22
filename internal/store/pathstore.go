package store

import (
	"context"
	"errors"

	"fleet-tracker/internal/domain"
)

// ErrConflict is returned when an atomic append lost the race for its
// asset too many times in a row. The caller drops the single report and
// stored state stays consistent.
var ErrConflict = errors.New("append conflict: retries exhausted")

// PathStore owns the authoritative per-asset state: the last-known
// position and the bounded recent-history trail. Append is a single
// atomic read-modify-write; concurrent appends for the same asset
// serialize, appends for different assets do not block each other.
type PathStore interface {
	// Append stores rec as the asset's current position and pushes it
	// onto the path, trimming the oldest entries beyond the cap. The
	// asset is created on first append for an unseen id. Returns the
	// post-append view of the asset.
	Append(ctx context.Context, id, name string, rec domain.Position) (domain.Asset, error)

	GetCurrent(ctx context.Context, id string) (domain.Position, bool, error)
	GetPath(ctx context.Context, id string) ([]domain.Position, error)

	// GetAll returns every known asset, used to seed a newly connected
	// observer and to drive the observation cycle.
	GetAll(ctx context.Context) (map[string]domain.Asset, error)

	// SetSnapshot overwrites the asset's retained pre-shutdown snapshot.
	SetSnapshot(ctx context.Context, snap domain.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (domain.Snapshot, bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// resolveName keeps the first non-empty display name, falling back to
// the asset id.
func resolveName(existing, incoming, id string) string {
	if incoming != "" {
		return incoming
	}
	if existing != "" {
		return existing
	}
	return id
}

// trimFront drops the oldest entries so at most cap remain.
func trimFront(path []domain.Position, cap int) []domain.Position {
	if cap > 0 && len(path) > cap {
		return path[len(path)-cap:]
	}
	return path
}
