package pipeline

import (
	"context"
	"sync"
	"time"

	"fleet-tracker/internal/archive"
	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/status"
	"fleet-tracker/internal/store"
)

// Publisher receives the assembled world for fan-out. Satisfied by
// hub.Hub.
type Publisher interface {
	Publish(assets map[string]domain.AssetState)
}

// Broadcaster drives the observation cycle: pull every asset from the
// store, classify each at the current instant, feed transitions to the
// archiver, and push the assembled world to the hub. It runs once after
// every committed write and on a fixed interval so dormant assets still
// age into offline.
type Broadcaster struct {
	store      store.PathStore
	classifier *status.Classifier
	archiver   *archive.Archiver
	hub        Publisher
	log        *logger.Logger

	interval time.Duration
	now      func() time.Time

	// Serializes evaluation so states reach the hub in commit order.
	mu sync.Mutex
}

func NewBroadcaster(
	ps store.PathStore,
	cl *status.Classifier,
	ar *archive.Archiver,
	h Publisher,
	interval time.Duration,
	log *logger.Logger,
) *Broadcaster {
	return &Broadcaster{
		store:      ps,
		classifier: cl,
		archiver:   ar,
		hub:        h,
		log:        log,
		interval:   interval,
		now:        time.Now,
	}
}

// Run re-evaluates on a fixed interval. Committed writes additionally
// call Evaluate directly, so observers see every change immediately.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// A tick with no status change carries no new information,
			// so it publishes nothing.
			b.evaluate(ctx, false)
		case <-ctx.Done():
			return
		}
	}
}

// Evaluate classifies every asset and publishes the full mapping.
// Called once per committed write.
func (b *Broadcaster) Evaluate(ctx context.Context) {
	b.evaluate(ctx, true)
}

func (b *Broadcaster) evaluate(ctx context.Context, force bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	assets, err := b.store.GetAll(ctx)
	if err != nil {
		b.log.Error("state read failed, skipping broadcast: %v", err)
		return
	}

	now := b.now()
	changed := false
	world := make(map[string]domain.AssetState, len(assets))
	for id, asset := range assets {
		st := b.classifier.Classify(asset.Current, asset.Path, now)
		if b.archiver.Observe(ctx, id, st, asset.Path) {
			changed = true
		}
		world[id] = domain.AssetState{Asset: asset, Status: st}
	}

	if force || changed {
		b.hub.Publish(world)
	}
}

// World assembles the classified full mapping without publishing it.
// The hub seeds newly connected observers from this.
func (b *Broadcaster) World(ctx context.Context) (map[string]domain.AssetState, error) {
	assets, err := b.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	now := b.now()
	world := make(map[string]domain.AssetState, len(assets))
	for id, asset := range assets {
		world[id] = domain.AssetState{
			Asset:  asset,
			Status: b.classifier.Classify(asset.Current, asset.Path, now),
		}
	}
	return world, nil
}

// Summaries exposes the derived list view: id, name and status per
// asset, no geometry.
func (b *Broadcaster) Summaries(ctx context.Context) ([]domain.Summary, error) {
	assets, err := b.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	now := b.now()
	out := make([]domain.Summary, 0, len(assets))
	for id, asset := range assets {
		out = append(out, domain.Summary{
			ID:     id,
			Name:   asset.Name,
			Status: b.classifier.Classify(asset.Current, asset.Path, now),
		})
	}
	return out, nil
}
