package event

import (
	"context"
	"slices"
	"time"

	"number-duel-server/gameerrors"
)

// playerTurnHandler records one player's selection. A player's repeat
// submission for the same turn is absorbed by the dedup key; everything else
// is checked against the log here.
type playerTurnHandler struct {
	now func() time.Time
}

func (h playerTurnHandler) Validate(ctx context.Context, log Log, gameID int64, ev Payload) (string, error) {
	turn, ok := ev.(*PlayerTurn)
	if !ok {
		return "", wrongPayload(TypePlayerTurn, ev)
	}
	if turn.Selection < SelectionMin || turn.Selection > SelectionMax {
		return "", gameerrors.ErrSelectionOutOfRange
	}

	events, err := log.Events(ctx, gameID)
	if err != nil {
		return "", err
	}
	if lastOfType(events, TypeStarted) == nil {
		return "", &gameerrors.OutOfOrderError{
			EventType: string(TypePlayerTurn),
			Expected:  []string{string(TypeStarted), string(TypeTurnStarted)},
		}
	}

	joined := false
	for _, e := range events {
		if e.Type == TypePlayerJoined && e.Payload.(*PlayerJoined).PlayerID == turn.PlayerID {
			joined = true
			break
		}
	}
	if !joined {
		return "", gameerrors.ErrPlayerNotInGame
	}

	current := lastOfType(events, TypeTurnStarted)
	if current == nil {
		return "", &gameerrors.OutOfOrderError{
			EventType: string(TypePlayerTurn),
			Expected:  []string{string(TypeTurnStarted)},
		}
	}
	opened := current.Payload.(*TurnStarted)
	if opened.TurnID != turn.TurnID {
		return "", gameerrors.ErrTurnMismatch
	}
	if h.now().After(opened.ExpiresAt) {
		return "", gameerrors.ErrTurnExpired
	}
	if slices.Contains(opened.UnavailableSelections[turn.PlayerID], turn.Selection) {
		return "", gameerrors.ErrSelectionUnavailable
	}

	return dedupKey(gameID, TypePlayerTurn, turn.PlayerID, int64(turn.TurnID)), nil
}

// Process emits TURN_COMPLETE once every joined player has a selection
// recorded for this turn. Cumulative scores come from the previous turn's
// TURN_COMPLETE; turn 1 starts from zero.
func (playerTurnHandler) Process(ctx context.Context, log Log, gameID int64, ev Payload) (Payload, error) {
	turn := ev.(*PlayerTurn)
	events, err := log.EventsByType(ctx, gameID, TypePlayerJoined, TypePlayerTurn, TypeTurnComplete)
	if err != nil {
		return nil, err
	}

	currentTurns := playerTurnsFor(events, turn.TurnID)
	if len(currentTurns) != countOfType(events, TypePlayerJoined) {
		// Waiting on the other player; silent ack.
		return nil, nil
	}

	previousScores := make(map[int64]int)
	for _, e := range events {
		if e.Type != TypeTurnComplete {
			continue
		}
		tc := e.Payload.(*TurnComplete)
		if tc.TurnID == turn.TurnID-1 {
			for id, res := range tc.Results {
				previousScores[id] = res.Score
			}
		}
	}

	results := make(map[int64]TurnResult, len(currentTurns))
	for _, pt := range currentTurns {
		results[pt.PlayerID] = TurnResult{
			Score:     previousScores[pt.PlayerID] + pt.Selection,
			Selection: pt.Selection,
		}
	}
	return &TurnComplete{TurnID: turn.TurnID, Results: results}, nil
}

func (playerTurnHandler) Notify() NotifyPolicy { return NotifyNone }
