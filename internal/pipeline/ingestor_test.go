package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/store"
	"fleet-tracker/internal/telemetry"
)

const ingestTopic = "fleet/gps"

func newTestIngestor(ms *store.MemoryStore, pub Publisher) (*Ingestor, *ChanSource, *Dispatcher) {
	log := logger.New("ingest-test")
	src := NewChanSource(64)
	d := NewDispatcher(64)
	b, _ := newTestBroadcaster(ms, pub)
	ing := NewIngestor(src, telemetry.NewNormalizer(ingestTopic), ms, d, b, log)
	return ing, src, d
}

func report(id string, ts int64) []byte {
	raw, _ := json.Marshal(map[string]interface{}{
		"vehicleId": id,
		"latitude":  22.317094,
		"longitude": 87.314139,
		"timestamp": ts,
	})
	return raw
}

func TestIngestorCommitsAndBroadcasts(t *testing.T) {
	ms := store.NewMemoryStore(500)
	pub := &capturePublisher{}
	ing, src, d := newTestIngestor(ms, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		ing.Run(ctx)
	}()

	src.C <- Inbound{Topic: ingestTopic, Payload: report("vehicle1", 1700000000000)}
	src.C <- Inbound{Topic: ingestTopic, Payload: report("vehicle1", 1700000001000)}
	src.Close()
	done.Wait()

	path, _ := ms.GetPath(context.Background(), "vehicle1")
	if len(path) != 2 {
		t.Fatalf("path length = %d, want 2", len(path))
	}
	if path[0].Timestamp != 1700000000000 || path[1].Timestamp != 1700000001000 {
		t.Errorf("path order = %d,%d, want arrival order", path[0].Timestamp, path[1].Timestamp)
	}

	// One full-state push per committed change.
	if pub.count() != 2 {
		t.Errorf("published %d worlds, want 2", pub.count())
	}

	// Committed reports reach the history channel too.
	if got := len(d.HistoryChan); got != 2 {
		t.Errorf("history channel holds %d reports, want 2", got)
	}
}

func TestIngestorDropsMalformedAndContinues(t *testing.T) {
	ms := store.NewMemoryStore(500)
	pub := &capturePublisher{}
	ing, src, _ := newTestIngestor(ms, pub)

	ctx := context.Background()
	var done sync.WaitGroup
	done.Add(1)
	go func() {
		defer done.Done()
		ing.Run(ctx)
	}()

	src.C <- Inbound{Topic: ingestTopic, Payload: []byte(`{broken`)}
	src.C <- Inbound{Topic: "fleet/other", Payload: report("v1", 1)}
	src.C <- Inbound{Topic: ingestTopic, Payload: []byte(`{"vehicleId":"v1","latitude":99,"longitude":0}`)}
	src.C <- Inbound{Topic: ingestTopic, Payload: report("v1", 1700000000000)}
	src.Close()
	done.Wait()

	path, _ := ms.GetPath(ctx, "v1")
	if len(path) != 1 {
		t.Fatalf("path length = %d, want only the valid report stored", len(path))
	}
	if pub.count() != 1 {
		t.Errorf("published %d worlds, want 1 (rejections must not broadcast)", pub.count())
	}
}

func TestIngestorConcurrentWorkersSameAsset(t *testing.T) {
	ms := store.NewMemoryStore(500)
	pub := &capturePublisher{}
	ing, src, _ := newTestIngestor(ms, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const workers, reports = 4, 60

	var done sync.WaitGroup
	for i := 0; i < workers; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			ing.Run(ctx)
		}()
	}

	for i := 0; i < reports; i++ {
		src.C <- Inbound{Topic: ingestTopic, Payload: report("v1", int64(1700000000000+i))}
	}
	src.Close()
	done.Wait()

	path, _ := ms.GetPath(context.Background(), "v1")
	if len(path) != reports {
		t.Fatalf("path length = %d, want %d (no lost reports under racing workers)", len(path), reports)
	}

	seen := make(map[int64]bool, reports)
	for _, p := range path {
		if seen[p.Timestamp] {
			t.Errorf("duplicate report %d", p.Timestamp)
		}
		seen[p.Timestamp] = true
	}
}

func TestIngestManualReportBehavesLikeIngested(t *testing.T) {
	ms := store.NewMemoryStore(500)
	pub := &capturePublisher{}
	ing, _, d := newTestIngestor(ms, pub)

	ctx := context.Background()
	now := time.Now()
	rep := domain.Report{
		AssetID:    "forklift-2",
		Name:       "Forklift 2",
		Position:   domain.Position{Latitude: 22.3, Longitude: 87.3, Timestamp: now.UnixMilli()},
		ReceivedAt: now,
		RawPayload: []byte(`{"source":"manual-add"}`),
	}

	if err := ing.Ingest(ctx, rep); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	cur, ok, _ := ms.GetCurrent(ctx, "forklift-2")
	if !ok || cur.Timestamp != now.UnixMilli() {
		t.Errorf("GetCurrent = %v,%v, want the manual position stored", cur, ok)
	}
	if pub.count() != 1 {
		t.Errorf("published %d worlds, want 1", pub.count())
	}
	if len(d.HistoryChan) != 1 {
		t.Errorf("history channel holds %d reports, want 1", len(d.HistoryChan))
	}
}

func TestDispatcherDropsWhenHistoryFull(t *testing.T) {
	d := NewDispatcher(1)
	rep := &domain.Report{AssetID: "v1"}

	d.Dispatch(rep)
	d.Dispatch(rep) // full channel: dropped, never blocks

	if len(d.HistoryChan) != 1 {
		t.Errorf("history channel holds %d, want 1", len(d.HistoryChan))
	}
}

func TestChanSourceClose(t *testing.T) {
	src := NewChanSource(1)
	src.C <- Inbound{Topic: "t", Payload: []byte("x")}
	src.Close()

	var got int
	for range src.Messages() {
		got++
	}
	if got != 1 {
		t.Errorf("drained %d messages, want 1", got)
	}
}
