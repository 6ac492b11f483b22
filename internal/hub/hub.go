package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleet-tracker/internal/domain"
	"fleet-tracker/internal/logger"
	"fleet-tracker/internal/metrics"
)

// Message types on the outbound push interface.
const (
	TypeInitial = "INITIAL"
	TypeUpdate  = "UPDATE"
)

// StateMessage is one full-state push: the complete mapping of assets,
// never a diff.
type StateMessage struct {
	Type      string                       `json:"type"`
	Assets    map[string]domain.AssetState `json:"assets"`
	Timestamp int64                        `json:"timestamp"`
}

// StateFn supplies the authoritative current world, read from the path
// store, for seeding a newly connected observer.
type StateFn func() map[string]domain.AssetState

// Hub fans full-state updates out to websocket observers. A new
// observer immediately receives the current stored state; thereafter
// every committed change is pushed to every observer. Slow observers
// are dropped rather than allowed to stall the rest.
type Hub struct {
	log *logger.Logger

	register   chan *Client
	unregister chan *Client
	broadcast  chan *StateMessage

	clients map[*Client]struct{}
	latest  *StateMessage
	state   StateFn

	clientSendBuffer int
}

func NewHub(log *logger.Logger, broadcastBuffer, clientSendBuffer int) *Hub {
	if clientSendBuffer < 1 {
		// The register branch hands the initial state to a client whose
		// pumps have not started yet; an unbuffered channel would wedge
		// the hub loop there.
		clientSendBuffer = 1
	}
	return &Hub{
		log:              log,
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		broadcast:        make(chan *StateMessage, broadcastBuffer),
		clients:          make(map[*Client]struct{}),
		clientSendBuffer: clientSendBuffer,
	}
}

// SetState installs the supplier used to seed new observers. Must be
// called before Run.
func (h *Hub) SetState(fn StateFn) {
	h.state = fn
}

// Run is the hub loop. Register, unregister and broadcast all serialize
// through it, so the observer set needs no extra locking and a
// subscriber always sees every state committed before its registration.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			client.send <- h.initialMessage()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case msg := <-h.broadcast:
			h.latest = msg
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Observer too slow; drop it so the rest keep
					// receiving. It can resubscribe for fresh state.
					delete(h.clients, client)
					close(client.send)
					metrics.ObserversDropped.Add(1)
				}
			}
			metrics.BroadcastsSent.Add(1)

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return
		}
	}
}

// Publish queues one full-state update for every observer.
func (h *Hub) Publish(assets map[string]domain.AssetState) {
	h.broadcast <- &StateMessage{
		Type:      TypeUpdate,
		Assets:    assets,
		Timestamp: time.Now().UnixMilli(),
	}
}

// initialMessage reads the stored world, so an observer connecting
// before the first broadcast still sees every committed write. The last
// broadcast is the fallback when the store read fails.
func (h *Hub) initialMessage() *StateMessage {
	var assets map[string]domain.AssetState
	if h.state != nil {
		assets = h.state()
	}
	if assets == nil && h.latest != nil {
		assets = h.latest.Assets
	}
	if assets == nil {
		assets = map[string]domain.AssetState{}
	}
	return &StateMessage{
		Type:      TypeInitial,
		Assets:    assets,
		Timestamp: time.Now().UnixMilli(),
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an observer connection and registers it.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warning("websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan *StateMessage, h.clientSendBuffer),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
