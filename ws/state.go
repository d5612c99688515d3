package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"number-duel-server/event"
	"number-duel-server/storage"
	"number-duel-server/wsutil"
)

// statePlayer is the per-player slice of the attach snapshot.
type statePlayer struct {
	ID                    int64 `json:"id"`
	Score                 int   `json:"score"`
	LastMove              int   `json:"last_move,omitempty"`
	UnavailableSelections []int `json:"unavailable_selections,omitempty"`
}

// stateMsg is the snapshot a client receives on attach, so it does not have
// to replay events it missed while disconnected.
type stateMsg struct {
	Type          string         `json:"type"`
	GameID        int64          `json:"game_id"`
	Status        event.Status   `json:"status"`
	CurrentTurnID int            `json:"current_turn_id,omitempty"`
	TurnExpiresAt *time.Time     `json:"turn_expires_at,omitempty"`
	Players       []statePlayer  `json:"players"`
	Outcome       *event.Summary `json:"outcome,omitempty"`
}

// stateMessage marshals an already-redacted aggregate into the wire snapshot.
// Players are ordered by ID so the payload is deterministic.
func stateMessage(g *event.Game) ([]byte, error) {
	msg := stateMsg{
		Type:          "game-state",
		GameID:        g.ID,
		Status:        g.Status,
		CurrentTurnID: g.CurrentTurnID,
		Players:       make([]statePlayer, 0, len(g.Players)),
		Outcome:       g.Outcome,
	}
	if !g.TurnExpiresAt.IsZero() {
		t := g.TurnExpiresAt
		msg.TurnExpiresAt = &t
	}
	for _, p := range g.Players {
		msg.Players = append(msg.Players, statePlayer{
			ID:                    p.ID,
			Score:                 p.Score,
			LastMove:              p.LastMove,
			UnavailableSelections: p.UnavailableSelections,
		})
	}
	slices.SortFunc(msg.Players, func(a, b statePlayer) int { return int(a.ID - b.ID) })
	return json.Marshal(msg)
}

// sendState rebuilds the game aggregate from its event log and delivers the
// client's redacted view of it. A game with no events yet is silently skipped.
func (c *Client) sendState() {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var g *event.Game
	err := c.hub.pool.WithTx(ctx, func(ctx context.Context, tx *storage.TxStore) error {
		events, err := tx.Events(ctx, c.gameID)
		if err != nil || len(events) == 0 {
			return err
		}
		g, err = event.Reduce(events)
		return err
	})
	if err != nil {
		slog.Error("rebuilding game state for client", "tag", "ws", "game_id", c.gameID, "error", err)
		return
	}
	if g == nil {
		return
	}

	data, err := stateMessage(g.ForPlayer(c.userID))
	if err != nil {
		slog.Error("encoding game state", "tag", "ws", "game_id", c.gameID, "error", err)
		return
	}
	wsutil.SafeSend(c.send, data)
}
