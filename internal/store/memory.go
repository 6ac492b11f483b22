package store

import (
	"context"
	"sync"

	"fleet-tracker/internal/domain"
)

// MemoryStore is an in-process PathStore. Each asset record carries its
// own mutex so writers for different assets never contend; the outer
// map lock only guards membership.
type MemoryStore struct {
	cap int

	mu     sync.RWMutex
	assets map[string]*memAsset
}

type memAsset struct {
	mu       sync.Mutex
	asset    domain.Asset
	snapshot *domain.Snapshot
}

func NewMemoryStore(pathCap int) *MemoryStore {
	return &MemoryStore{
		cap:    pathCap,
		assets: make(map[string]*memAsset),
	}
}

func (s *MemoryStore) entry(id string) *memAsset {
	s.mu.RLock()
	e, ok := s.assets[id]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.assets[id]; ok {
		return e
	}
	e = &memAsset{asset: domain.Asset{ID: id}}
	s.assets[id] = e
	return e
}

func (s *MemoryStore) Append(ctx context.Context, id, name string, rec domain.Position) (domain.Asset, error) {
	e := s.entry(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.asset.Name = resolveName(e.asset.Name, name, id)
	e.asset.Current = rec
	e.asset.Path = trimFront(append(e.asset.Path, rec), s.cap)

	return copyAsset(e.asset), nil
}

func (s *MemoryStore) GetCurrent(ctx context.Context, id string) (domain.Position, bool, error) {
	s.mu.RLock()
	e, ok := s.assets[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Position{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.asset.Path) == 0 {
		return domain.Position{}, false, nil
	}
	return e.asset.Current, true, nil
}

func (s *MemoryStore) GetPath(ctx context.Context, id string) ([]domain.Position, error) {
	s.mu.RLock()
	e, ok := s.assets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return copyPath(e.asset.Path), nil
}

func (s *MemoryStore) GetAll(ctx context.Context) (map[string]domain.Asset, error) {
	s.mu.RLock()
	entries := make([]*memAsset, 0, len(s.assets))
	for _, e := range s.assets {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make(map[string]domain.Asset, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if len(e.asset.Path) > 0 {
			out[e.asset.ID] = copyAsset(e.asset)
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) SetSnapshot(ctx context.Context, snap domain.Snapshot) error {
	e := s.entry(snap.AssetID)

	e.mu.Lock()
	defer e.mu.Unlock()
	frozen := domain.Snapshot{
		AssetID:      snap.AssetID,
		CapturedPath: copyPath(snap.CapturedPath),
		CapturedAt:   snap.CapturedAt,
	}
	e.snapshot = &frozen
	return nil
}

func (s *MemoryStore) GetSnapshot(ctx context.Context, id string) (domain.Snapshot, bool, error) {
	s.mu.RLock()
	e, ok := s.assets[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Snapshot{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil {
		return domain.Snapshot{}, false, nil
	}
	return domain.Snapshot{
		AssetID:      e.snapshot.AssetID,
		CapturedPath: copyPath(e.snapshot.CapturedPath),
		CapturedAt:   e.snapshot.CapturedAt,
	}, true, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func copyAsset(a domain.Asset) domain.Asset {
	a.Path = copyPath(a.Path)
	return a
}

func copyPath(path []domain.Position) []domain.Position {
	if path == nil {
		return nil
	}
	out := make([]domain.Position, len(path))
	copy(out, path)
	return out
}
