package pipeline

import (
	"context"
	"errors"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/store"
	"fleet-tracker/internal/telemetry"
)

// Ingestor consumes raw inbound messages, normalizes them, commits the
// accepted ones to the path store and triggers the downstream cycle.
// One bad message never stops the loop.
type Ingestor struct {
	src         Source
	normalizer  *telemetry.Normalizer
	store       store.PathStore
	dispatcher  *Dispatcher
	broadcaster *Broadcaster
	log         *logger.Logger
}

func NewIngestor(
	src Source,
	n *telemetry.Normalizer,
	ps store.PathStore,
	d *Dispatcher,
	b *Broadcaster,
	log *logger.Logger,
) *Ingestor {
	return &Ingestor{
		src:         src,
		normalizer:  n,
		store:       ps,
		dispatcher:  d,
		broadcaster: b,
		log:         log,
	}
}

// Run processes messages until the source closes or the context ends.
// Start as many of these as the config asks for; the store serializes
// racing writers per asset.
func (ing *Ingestor) Run(ctx context.Context) {
	for {
		select {
		case msg, ok := <-ing.src.Messages():
			if !ok {
				return
			}
			ing.handle(ctx, msg)

		case <-ctx.Done():
			return
		}
	}
}

func (ing *Ingestor) handle(ctx context.Context, msg Inbound) {
	defer func() {
		if r := recover(); r != nil {
			ing.log.Error("ingest panic on topic %s: %v", msg.Topic, r)
		}
	}()

	metrics.ReportsReceived.Add(1)

	rep, err := ing.normalizer.Normalize(msg.Payload, msg.Topic)
	if err != nil {
		metrics.ReportsRejected.Add(1)
		ing.log.Warning("dropped report on topic %s: %v (payload: %s)", msg.Topic, err, msg.Payload)
		return
	}

	_ = ing.Ingest(ctx, rep)
}

// Ingest commits one normalized report. The manual-add surface calls
// this too, so it behaves exactly like a freshly ingested report.
func (ing *Ingestor) Ingest(ctx context.Context, rep domain.Report) error {
	if _, err := ing.store.Append(ctx, rep.AssetID, rep.Name, rep.Position); err != nil {
		metrics.AppendsDropped.Add(1)
		if errors.Is(err, store.ErrConflict) {
			ing.log.Warning("dropped report for %s: %v", rep.AssetID, err)
		} else {
			ing.log.Error("append failed for %s: %v", rep.AssetID, err)
		}
		return err
	}

	ing.dispatcher.Dispatch(&rep)
	ing.broadcaster.Evaluate(ctx)
	return nil
}
