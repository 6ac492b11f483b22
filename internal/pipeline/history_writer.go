package pipeline

import (
	"context"
	"time"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
	"fleet-tracker/internal/store"
)

// HistoryWriter drains committed reports into the durable Postgres
// archive in batches. Entirely best-effort: the live pipeline already
// moved on by the time a batch lands.
type HistoryWriter struct {
	ch        <-chan *domain.Report
	db        *store.ArchiveDB
	batchSize int
	flushMS   int
	log       *logger.Logger
}

func NewHistoryWriter(
	ch <-chan *domain.Report,
	db *store.ArchiveDB,
	batchSize int,
	flushMS int,
	log *logger.Logger,
) *HistoryWriter {
	return &HistoryWriter{
		ch:        ch,
		db:        db,
		batchSize: batchSize,
		flushMS:   flushMS,
		log:       log,
	}
}

func (w *HistoryWriter) Run(ctx context.Context) {
	batch := make([]*domain.Report, 0, w.batchSize)
	ticker := time.NewTicker(time.Duration(w.flushMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case rep, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(ctx, batch)
				}
				return
			}
			batch = append(batch, rep)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(ctx, batch)
			}
			return
		}
	}
}

func (w *HistoryWriter) flush(ctx context.Context, batch []*domain.Report) {
	err := w.db.BatchInsert(ctx, batch)
	if err != nil {
		w.log.Warning("history write failed (batch=%d), retrying: %v", len(batch), err)
		time.Sleep(500 * time.Millisecond)
		if err = w.db.BatchInsert(ctx, batch); err != nil {
			w.log.Error("history write permanently failed (batch=%d): %v", len(batch), err)
			return
		}
	}
	metrics.HistoryRowsWritten.Add(int64(len(batch)))
}
