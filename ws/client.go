package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"number-duel-server/event"
	"number-duel-server/gameerrors"
	"number-duel-server/storage"
	"number-duel-server/wsutil"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Deadline for applying one inbound event.
	handleTimeout = 10 * time.Second
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID int64
	gameID int64
}

// ErrorMsg is sent back to the client when an inbound event is rejected.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ReadPump pumps messages from the websocket connection into the dispatcher.
// It runs in its own goroutine per connection.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read error", "tag", "ws", "user_id", c.userID, "error", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// WritePump pumps messages from the send channel to the websocket connection.
// It runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes one inbound envelope and applies it to the game in
// its own transaction.
func (c *Client) handleMessage(data []byte) {
	ev, err := event.DecodeEnvelope(data)
	if err != nil {
		c.sendError("Invalid message format.")
		return
	}

	// Clients may only submit their own turns; everything else is
	// server-originated.
	turn, ok := ev.(*event.PlayerTurn)
	if !ok {
		c.sendError("Unsupported event type: " + string(ev.EventType()) + ".")
		return
	}
	turn.PlayerID = c.userID

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err = c.hub.pool.WithTx(ctx, func(ctx context.Context, tx *storage.TxStore) error {
		_, err := c.hub.dispatcher.Handle(ctx, tx, c.gameID, turn)
		return err
	})
	if err != nil {
		c.sendError(rejectionMessage(err))
	}
}

// rejectionMessage maps dispatch errors to client-facing text. Unexpected
// errors are logged and reported generically.
func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, gameerrors.ErrTurnMismatch):
		return "That turn is no longer current."
	case errors.Is(err, gameerrors.ErrSelectionUnavailable):
		return "That selection is unavailable this turn."
	case errors.Is(err, gameerrors.ErrSelectionOutOfRange):
		return "Selection must be between 1 and 9."
	case errors.Is(err, gameerrors.ErrPlayerNotInGame):
		return "You are not part of this game."
	case errors.Is(err, gameerrors.ErrGameNotFound):
		return "Game not found."
	default:
		slog.Error("applying inbound event failed", "tag", "ws", "error", err)
		return "Could not apply your move."
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(ErrorMsg{Type: "error", Message: message})
	wsutil.SafeSend(c.send, data)
}
