package event

import (
	"context"
	"time"
)

// Stored is one appended event as read back from the log.
type Stored struct {
	Sequence  int64
	GameID    int64
	Type      Type
	Payload   Payload
	CreatedAt time.Time
}

// Log is the append-only, deduplicated event store for a single transaction.
// Append returns false without error when dedupKey already exists for the
// game; callers must treat that as "already handled, do not reprocess".
type Log interface {
	Append(ctx context.Context, gameID int64, ev Payload, dedupKey string) (stored bool, err error)
	// Events returns all events for the game ordered by append sequence.
	Events(ctx context.Context, gameID int64) ([]Stored, error)
	// EventsByType returns the game's events of the given types, ordered by
	// append sequence.
	EventsByType(ctx context.Context, gameID int64, types ...Type) ([]Stored, error)
}

// lastOfType returns the most recent stored event of type t, or nil.
func lastOfType(events []Stored, t Type) *Stored {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == t {
			return &events[i]
		}
	}
	return nil
}

// countOfType returns how many stored events have type t.
func countOfType(events []Stored, t Type) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}

// playerTurnsFor returns the PLAYER_TURN payloads recorded for turnID.
func playerTurnsFor(events []Stored, turnID int) []*PlayerTurn {
	var turns []*PlayerTurn
	for _, e := range events {
		if e.Type != TypePlayerTurn {
			continue
		}
		pt, ok := e.Payload.(*PlayerTurn)
		if ok && pt.TurnID == turnID {
			turns = append(turns, pt)
		}
	}
	return turns
}
