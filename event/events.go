package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies a kind of game event. The set is closed: the reducer and the
// handler registry are both exhaustive over it.
type Type string

const (
	TypeCreated      Type = "game-created"
	TypeStarted      Type = "game-started"
	TypePlayerJoined Type = "player-joined"
	TypePlayerTurn   Type = "player-turn"
	TypeTurnStarted  Type = "game-turn-started"
	TypeTurnComplete Type = "game-turn-complete"
	TypeTurnExpired  Type = "game-turn-expired"
	TypeFinished     Type = "game-finished"
)

// Selection bounds and the cap on per-player blocked numbers per turn.
const (
	SelectionMin             = 1
	SelectionMax             = 9
	MaxUnavailableSelections = 3
	RequiredPlayerCount      = 2
)

// Payload is the tagged union of event payloads. Each concrete payload reports
// its own type tag; the dispatcher routes on it.
type Payload interface {
	EventType() Type
}

// Created records a new game and its join code.
type Created struct {
	GameID   int64  `json:"game_id"`
	JoinCode string `json:"join_code"`
}

func (Created) EventType() Type { return TypeCreated }

// PlayerJoined records a player entering the game before it starts.
type PlayerJoined struct {
	PlayerID int64 `json:"player_id"`
}

func (PlayerJoined) EventType() Type { return TypePlayerJoined }

// Started records the game beginning once both players have joined.
type Started struct {
	PlayerIDs []int64 `json:"player_ids"`
}

func (Started) EventType() Type { return TypeStarted }

// TurnStarted opens a turn. UnavailableSelections maps each player to the
// numbers that player may not pick this turn; a player must never see another
// player's entry, which is why this event is delivered per-recipient.
type TurnStarted struct {
	TurnID                int             `json:"turn_id"`
	ExpiresAt             time.Time       `json:"expires_at"`
	UnavailableSelections map[int64][]int `json:"unavailable_selections"`
}

func (TurnStarted) EventType() Type { return TypeTurnStarted }

// Recipients returns the players this event fans out to.
func (e *TurnStarted) Recipients() []int64 {
	ids := make([]int64, 0, len(e.UnavailableSelections))
	for id := range e.UnavailableSelections {
		ids = append(ids, id)
	}
	return ids
}

// ForRecipient returns a copy holding only the recipient's own blocked numbers.
func (e *TurnStarted) ForRecipient(playerID int64) Payload {
	sels := e.UnavailableSelections[playerID]
	if sels == nil {
		sels = []int{}
	}
	return &TurnStarted{
		TurnID:                e.TurnID,
		ExpiresAt:             e.ExpiresAt,
		UnavailableSelections: map[int64][]int{playerID: sels},
	}
}

// PlayerTurn records one player's selection for a turn.
type PlayerTurn struct {
	PlayerID  int64 `json:"player_id"`
	TurnID    int   `json:"turn_id"`
	Selection int   `json:"selection"`
}

func (PlayerTurn) EventType() Type { return TypePlayerTurn }

// TurnResult is a player's cumulative score and selection after a turn.
type TurnResult struct {
	Score     int `json:"score"`
	Selection int `json:"selection"`
}

// TurnComplete records both players having moved and the resulting scores.
type TurnComplete struct {
	TurnID  int                  `json:"turn_id"`
	Results map[int64]TurnResult `json:"player_game_data"`
}

func (TurnComplete) EventType() Type { return TypeTurnComplete }

// TurnExpired records a player turn arriving after the deadline. The row-level
// reconciler resolves the game; the event only marks the occurrence.
type TurnExpired struct {
	TurnID int `json:"turn_id"`
}

func (TurnExpired) EventType() Type { return TypeTurnExpired }

// Summary describes the outcome of a finished game.
type Summary struct {
	// Status is "result" or "draw".
	Status string        `json:"status"`
	Scores map[int64]int `json:"players"`
	Winner int64         `json:"winner,omitempty"`
	Reason string        `json:"reason,omitempty"`
}

// SummaryDraw and SummaryResult are the two Summary.Status values.
const (
	SummaryDraw   = "draw"
	SummaryResult = "result"
)

// Finished closes the game with its summary.
type Finished struct {
	Summary Summary `json:"summary"`
}

func (Finished) EventType() Type { return TypeFinished }

// Decode unmarshals a stored payload back into its concrete type.
func Decode(t Type, data []byte) (Payload, error) {
	var (
		ev  Payload
		err error
	)
	switch t {
	case TypeCreated:
		v := &Created{}
		err, ev = json.Unmarshal(data, v), v
	case TypePlayerJoined:
		v := &PlayerJoined{}
		err, ev = json.Unmarshal(data, v), v
	case TypeStarted:
		v := &Started{}
		err, ev = json.Unmarshal(data, v), v
	case TypeTurnStarted:
		v := &TurnStarted{}
		err, ev = json.Unmarshal(data, v), v
	case TypePlayerTurn:
		v := &PlayerTurn{}
		err, ev = json.Unmarshal(data, v), v
	case TypeTurnComplete:
		v := &TurnComplete{}
		err, ev = json.Unmarshal(data, v), v
	case TypeTurnExpired:
		v := &TurnExpired{}
		err, ev = json.Unmarshal(data, v), v
	case TypeFinished:
		v := &Finished{}
		err, ev = json.Unmarshal(data, v), v
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", t, err)
	}
	return ev, nil
}

// Envelope is the wire form of an event: the type tag plus the raw payload.
type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Encode wraps a payload into its wire envelope.
func Encode(ev Payload) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.EventType(), Data: data})
}

// DecodeEnvelope parses an inbound wire message into a concrete payload.
func DecodeEnvelope(raw []byte) (Payload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}
	return Decode(env.Type, env.Data)
}
