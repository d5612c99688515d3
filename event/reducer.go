package event

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a reduced game aggregate.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "INPROGRESS"
	StatusFinished   Status = "FINISHED"
)

// Player is the per-player slice of the aggregate. LastMove is 0 until the
// player moves in the current turn and resets when a new turn starts.
type Player struct {
	ID                    int64
	Score                 int
	LastMove              int
	UnavailableSelections []int
}

// Game is the aggregate derived from a game's event log. It is never stored;
// Reduce rebuilds it from scratch on every read.
type Game struct {
	ID            int64
	JoinCode      string
	Status        Status
	CurrentTurnID int
	TurnExpiresAt time.Time
	Players       map[int64]*Player
	Outcome       *Summary
}

// Reduce folds ordered events into the current aggregate. It is deterministic
// and side-effect free; an unknown event type is an internal error, never a
// user-facing one.
func Reduce(events []Stored) (*Game, error) {
	g := &Game{Players: make(map[int64]*Player)}
	for _, e := range events {
		if err := apply(g, e.Payload); err != nil {
			return nil, fmt.Errorf("applying event %d (%s): %w", e.Sequence, e.Type, err)
		}
	}
	return g, nil
}

// ForPlayer returns a copy of the aggregate safe to show playerID: other
// players' blocked numbers and in-flight selections are withheld.
func (g *Game) ForPlayer(playerID int64) *Game {
	out := *g
	out.Players = make(map[int64]*Player, len(g.Players))
	for id, p := range g.Players {
		cp := *p
		if id != playerID {
			cp.UnavailableSelections = nil
			cp.LastMove = 0
		}
		out.Players[id] = &cp
	}
	return &out
}

func apply(g *Game, ev Payload) error {
	switch e := ev.(type) {
	case *Created:
		g.ID = e.GameID
		g.JoinCode = e.JoinCode
		g.Status = StatusCreated

	case *PlayerJoined:
		if _, ok := g.Players[e.PlayerID]; !ok {
			g.Players[e.PlayerID] = &Player{ID: e.PlayerID}
		}

	case *Started:
		g.Status = StatusInProgress

	case *TurnStarted:
		g.CurrentTurnID = e.TurnID
		g.TurnExpiresAt = e.ExpiresAt
		// Each player gets their own blocked numbers, never another player's.
		for id, p := range g.Players {
			p.LastMove = 0
			p.UnavailableSelections = e.UnavailableSelections[id]
		}

	case *PlayerTurn:
		p, ok := g.Players[e.PlayerID]
		if !ok {
			return fmt.Errorf("turn by unknown player %d", e.PlayerID)
		}
		p.LastMove = e.Selection

	case *TurnComplete:
		for id, res := range e.Results {
			if p, ok := g.Players[id]; ok {
				p.Score = res.Score
			}
		}

	case *TurnExpired:
		// State is resolved by the reconciler; the event itself changes nothing.

	case *Finished:
		g.Status = StatusFinished
		summary := e.Summary
		g.Outcome = &summary

	default:
		return fmt.Errorf("unknown event type %q", ev.EventType())
	}
	return nil
}
