package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/status"
	"fleet-tracker/internal/store"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	h := NewHub(logger.New("hub-test"), 64, 16)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	return h, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) StateMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StateMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read state message: %v", err)
	}
	return msg
}

func world(ids ...string) map[string]domain.AssetState {
	assets := make(map[string]domain.AssetState, len(ids))
	for _, id := range ids {
		assets[id] = domain.AssetState{
			Asset: domain.Asset{
				ID:      id,
				Name:    id,
				Current: domain.Position{Latitude: 22.3, Longitude: 87.3, Timestamp: 1},
				Path:    []domain.Position{{Latitude: 22.3, Longitude: 87.3, Timestamp: 1}},
			},
			Status: domain.StatusIdling,
		}
	}
	return assets
}

func TestHubSendsInitialStateOnConnect(t *testing.T) {
	_, srv, cancel := startHub(t)
	defer cancel()

	conn := dial(t, srv)

	msg := readState(t, conn)
	if msg.Type != TypeInitial {
		t.Fatalf("first message type = %q, want %q", msg.Type, TypeInitial)
	}
	if len(msg.Assets) != 0 {
		t.Errorf("fresh hub pushed %d assets, want empty state", len(msg.Assets))
	}
}

func TestHubPushesFullStateToAllObservers(t *testing.T) {
	h, srv, cancel := startHub(t)
	defer cancel()

	a := dial(t, srv)
	b := dial(t, srv)
	readState(t, a)
	readState(t, b)

	h.Publish(world("vehicle1", "forklift-2"))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readState(t, conn)
		if msg.Type != TypeUpdate {
			t.Fatalf("message type = %q, want %q", msg.Type, TypeUpdate)
		}
		if len(msg.Assets) != 2 {
			t.Errorf("update carried %d assets, want full state of 2", len(msg.Assets))
		}
		if _, ok := msg.Assets["vehicle1"]; !ok {
			t.Errorf("update missing vehicle1: %v", msg.Assets)
		}
	}
}

func TestHubLateSubscriberGetsLatestState(t *testing.T) {
	h, srv, cancel := startHub(t)
	defer cancel()

	first := dial(t, srv)
	readState(t, first)
	h.Publish(world("vehicle1"))
	readState(t, first)

	// A subscriber arriving after the commit must not start from an
	// empty world.
	late := dial(t, srv)
	msg := readState(t, late)
	if msg.Type != TypeInitial {
		t.Fatalf("late subscriber first message = %q, want %q", msg.Type, TypeInitial)
	}
	if _, ok := msg.Assets["vehicle1"]; !ok {
		t.Errorf("late subscriber initial state missing vehicle1: %v", msg.Assets)
	}
}

func TestHubSeedsInitialStateFromStore(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore(500)
	ms.Append(ctx, "vehicle1", "Harvester", domain.Position{
		Latitude: 22.317094, Longitude: 87.314139, Timestamp: time.Now().UnixMilli(),
	})

	h := NewHub(logger.New("hub-test"), 64, 16)
	cl := status.NewDefaultClassifier()
	h.SetState(func() map[string]domain.AssetState {
		assets, err := ms.GetAll(ctx)
		if err != nil {
			return nil
		}
		world := make(map[string]domain.AssetState, len(assets))
		for id, a := range assets {
			world[id] = domain.AssetState{Asset: a, Status: cl.Classify(a.Current, a.Path, time.Now())}
		}
		return world
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(runCtx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	// No broadcast has happened yet; the observer must still see the
	// committed write.
	conn := dial(t, srv)
	msg := readState(t, conn)
	if msg.Type != TypeInitial {
		t.Fatalf("first message type = %q, want %q", msg.Type, TypeInitial)
	}
	v, ok := msg.Assets["vehicle1"]
	if !ok {
		t.Fatalf("initial state missing vehicle1, got %d assets", len(msg.Assets))
	}
	if v.Name != "Harvester" || v.Status != domain.StatusIdling {
		t.Errorf("vehicle1 = %s/%s, want Harvester/idling", v.Name, v.Status)
	}
}

func TestHubZeroSendBufferStillRegisters(t *testing.T) {
	h := NewHub(logger.New("hub-test"), 64, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	// The initial state is queued before the client pumps start; a
	// zero-size buffer must not wedge the hub loop.
	conn := dial(t, srv)
	msg := readState(t, conn)
	if msg.Type != TypeInitial {
		t.Errorf("first message type = %q, want %q", msg.Type, TypeInitial)
	}

	h.Publish(world("vehicle1"))
	if got := readState(t, conn); got.Type != TypeUpdate {
		t.Errorf("second message type = %q, want %q", got.Type, TypeUpdate)
	}
}

func TestHubSurvivesObserverDisconnect(t *testing.T) {
	h, srv, cancel := startHub(t)
	defer cancel()

	gone := dial(t, srv)
	readState(t, gone)
	stay := dial(t, srv)
	readState(t, stay)

	gone.Close()
	time.Sleep(50 * time.Millisecond)

	h.Publish(world("vehicle1"))

	msg := readState(t, stay)
	if msg.Type != TypeUpdate || len(msg.Assets) != 1 {
		t.Errorf("surviving observer got %q with %d assets, want UPDATE with 1", msg.Type, len(msg.Assets))
	}
}
