package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"number-duel-server/event"
	"number-duel-server/storage"
	"number-duel-server/wsutil"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allow all origins for development; restrict in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Verifier authenticates the token a client presents when connecting.
type Verifier interface {
	Verify(tokenString string) (int64, error)
}

// Dispatcher applies an inbound event to a game within a transaction-scoped
// event log.
type Dispatcher interface {
	Handle(ctx context.Context, log event.Log, gameID int64, ev event.Payload) (event.Result, error)
}

// Pool opens the transaction each inbound event runs in. *storage.Store
// implements it.
type Pool interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *storage.TxStore) error) error
}

// Hub tracks connected clients per game and routes outbound events to them.
// It implements event.NotificationRouter.
type Hub struct {
	pool       Pool
	dispatcher Dispatcher
	verifier   Verifier

	mu      sync.RWMutex
	byGame  map[int64]map[*Client]bool
	closing bool
}

// NewHub creates a hub. The dispatcher may be set after construction via
// SetDispatcher, since the dispatcher itself needs the hub as its router.
func NewHub(pool Pool, verifier Verifier) *Hub {
	return &Hub{
		pool:     pool,
		verifier: verifier,
		byGame:   make(map[int64]map[*Client]bool),
	}
}

// SetDispatcher wires the inbound event path. Call before serving.
func (h *Hub) SetDispatcher(d Dispatcher) { h.dispatcher = d }

// Broadcast sends ev to every client connected to gameID.
func (h *Hub) Broadcast(gameID int64, ev event.Payload) {
	data, err := event.Encode(ev)
	if err != nil {
		slog.Error("encoding broadcast event", "tag", "ws", "game_id", gameID, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byGame[gameID] {
		wsutil.SafeSend(client.send, data)
	}
}

// Direct sends ev only to playerID's connections on gameID.
func (h *Hub) Direct(gameID, playerID int64, ev event.Payload) {
	data, err := event.Encode(ev)
	if err != nil {
		slog.Error("encoding direct event", "tag", "ws", "game_id", gameID, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.byGame[gameID] {
		if client.userID == playerID {
			wsutil.SafeSend(client.send, data)
		}
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	clients := h.byGame[c.gameID]
	if clients == nil {
		clients = make(map[*Client]bool)
		h.byGame[c.gameID] = clients
	}
	clients[c] = true
	slog.Info("client connected", "tag", "ws", "game_id", c.gameID, "user_id", c.userID, "game_clients", len(clients))
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.byGame[c.gameID]
	if !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.byGame, c.gameID)
	}
	close(c.send)
	slog.Info("client disconnected", "tag", "ws", "game_id", c.gameID, "user_id", c.userID, "game_clients", len(clients))
}

// Shutdown stops accepting registrations and closes all connections.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closing = true
	for gameID, clients := range h.byGame {
		for client := range clients {
			close(client.send)
		}
		delete(h.byGame, gameID)
	}
	slog.Info("hub shut down", "tag", "ws")
}

// ServeWS upgrades the request to a websocket connection. The client must
// pass ?token= and ?gameId= query parameters.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "authorization required", http.StatusUnauthorized)
		return
	}
	gameID, err := strconv.ParseInt(r.URL.Query().Get("gameId"), 10, 64)
	if err != nil || gameID <= 0 {
		http.Error(w, "gameId query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "tag", "ws", "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		gameID: gameID,
	}
	if !h.register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
	client.sendState()
}
