package moves

import (
	"context"

	"number-duel-server/event"
	"number-duel-server/gameerrors"
	"number-duel-server/storage"
)

// Store is the transaction-scoped storage surface move submission needs.
// *storage.TxStore implements it.
type Store interface {
	OngoingGameForUser(ctx context.Context, userID int64) (*storage.OngoingGame, error)
	GameSnapshot(ctx context.Context, gameID int64) (*storage.GameSnapshot, error)
	InsertMove(ctx context.Context, gameID, userID int64, selection int) (*storage.MoveRow, error)
}

// MakeMove records userID's selection for the current turn of their ongoing
// game. The returned move carries the game and turn it landed on so the
// caller can trigger reconciliation.
func MakeMove(ctx context.Context, store Store, userID int64, selection int) (*storage.MoveRow, error) {
	if selection < event.SelectionMin || selection > event.SelectionMax {
		return nil, gameerrors.ErrSelectionOutOfRange
	}

	ongoing, err := store.OngoingGameForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ongoing == nil {
		return nil, gameerrors.ErrNoActiveGame
	}
	if ongoing.Status != storage.StatusInProgress {
		return nil, gameerrors.ErrGameNotInProgress
	}
	if ongoing.TurnExpired {
		return nil, gameerrors.ErrTurnExpired
	}

	snap, err := store.GameSnapshot(ctx, ongoing.GameID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, gameerrors.ErrGameNotFound
	}
	if unavailable(snap, userID, selection) {
		return nil, gameerrors.ErrSelectionUnavailable
	}

	return store.InsertMove(ctx, ongoing.GameID, userID, selection)
}

// unavailable reports whether selection is blocked by the player's own move
// on the previous turn. A move makes itself and its neighbors unusable on
// the turn that follows.
func unavailable(snap *storage.GameSnapshot, userID int64, selection int) bool {
	for _, mv := range snap.Moves[userID] {
		if mv.TurnID != snap.CurrentTurnID-1 {
			continue
		}
		for _, blocked := range event.UnavailableAfter(mv.Selection) {
			if blocked == selection {
				return true
			}
		}
	}
	return false
}
