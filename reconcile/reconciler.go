package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"number-duel-server/gameerrors"
	"number-duel-server/storage"
)

// Outcome reasons recorded on the games row.
const (
	ReasonScore       = "score"
	ReasonDraw        = "draw"
	ReasonTurnExpired = "user did not make their move in the given time"
	ReasonAbandoned   = "no user made a move in the given time"
)

// Store is what reconciliation needs from a transaction-scoped storage
// handle. *storage.TxStore implements it.
type Store interface {
	TryGameUpdateLock(ctx context.Context, gameID int64) (bool, error)
	GameSnapshot(ctx context.Context, gameID int64) (*storage.GameSnapshot, error)
	AbandonGame(ctx context.Context, gameID int64, version int, reason string) error
	FinishGame(ctx context.Context, gameID int64, version int, winnerID int64, reason string) error
	AdvanceTurn(ctx context.Context, gameID int64, version, nextTurnID int, expiresAt time.Time, scoreDeltas map[int64]int) error
}

// Reconciler drives a game to its next turn, to a finish, or to abandonment
// based on turn completeness and expiry. It is safe to run at any time from
// any number of workers: contention and already-resolved games degrade to
// logged no-ops, never errors.
type Reconciler struct {
	turnExpiry time.Duration
	now        func() time.Time
}

// New creates a reconciler. turnExpiry sets the deadline for each newly
// opened turn.
func New(turnExpiry time.Duration) *Reconciler {
	return &Reconciler{turnExpiry: turnExpiry, now: time.Now}
}

// UpdateGameState inspects one game and applies whichever lifecycle step is
// due. Must run inside the transaction that owns store. Every mutating branch
// is a CAS on the game's version; losing the CAS means another worker already
// resolved the game.
func (r *Reconciler) UpdateGameState(ctx context.Context, store Store, gameID int64) error {
	snap, err := store.GameSnapshot(ctx, gameID)
	if err != nil {
		return err
	}
	if snap == nil {
		slog.Info("game missing, nothing to reconcile", "tag", "reconcile", "game_id", gameID)
		return nil
	}

	locked, err := store.TryGameUpdateLock(ctx, gameID)
	if err != nil {
		return err
	}
	if !locked {
		slog.Info("game update already in progress", "tag", "reconcile", "game_id", gameID)
		return nil
	}

	if snap.Status != storage.StatusInProgress {
		slog.Info("game not in progress, nothing to reconcile", "tag", "reconcile", "game_id", gameID, "status", snap.Status)
		return nil
	}
	if len(snap.Moves) != 2 {
		slog.Warn("game lacks two players, skipping", "tag", "reconcile", "game_id", gameID, "players", len(snap.Moves))
		return nil
	}

	movers := make([]int64, 0, 2)
	for userID, moves := range snap.Moves {
		if hasMoveFor(moves, snap.CurrentTurnID) {
			movers = append(movers, userID)
		}
	}
	turnComplete := len(movers) == 2

	switch {
	case !turnComplete && !snap.TurnExpired:
		// Turn still open.
		return nil

	case !turnComplete && len(movers) == 0:
		return r.benign(store.AbandonGame(ctx, gameID, snap.Version, ReasonAbandoned), gameID, "abandon")

	case !turnComplete:
		// Exactly one player moved before the deadline: they win by default,
		// regardless of relative score.
		return r.benign(store.FinishGame(ctx, gameID, snap.Version, movers[0], ReasonTurnExpired), gameID, "finish")

	default:
		return r.resolveTurn(ctx, store, snap)
	}
}

// resolveTurn handles a turn both players completed: equal selections end the
// game on cumulative score, different selections advance it.
func (r *Reconciler) resolveTurn(ctx context.Context, store Store, snap *storage.GameSnapshot) error {
	selections := make(map[int64]int, 2)
	for userID, moves := range snap.Moves {
		for _, mv := range moves {
			if mv.TurnID == snap.CurrentTurnID {
				selections[userID] = mv.Selection
			}
		}
	}

	if allEqual(selections) {
		winnerID := scoreWinner(snap.Scores)
		reason := ReasonScore
		if winnerID == 0 {
			reason = ReasonDraw
		}
		return r.benign(store.FinishGame(ctx, snap.GameID, snap.Version, winnerID, reason), snap.GameID, "finish")
	}

	err := store.AdvanceTurn(ctx, snap.GameID, snap.Version, snap.CurrentTurnID+1, r.now().Add(r.turnExpiry), selections)
	return r.benign(err, snap.GameID, "advance")
}

// benign downgrades a lost CAS race to a logged no-op: another writer already
// resolved the game.
func (r *Reconciler) benign(err error, gameID int64, action string) error {
	if errors.Is(err, gameerrors.ErrVersionMismatch) {
		slog.Info("lost reconciliation race", "tag", "reconcile", "game_id", gameID, "action", action)
		return nil
	}
	return err
}

func hasMoveFor(moves []storage.MoveRow, turnID int) bool {
	for _, mv := range moves {
		if mv.TurnID == turnID {
			return true
		}
	}
	return false
}

func allEqual(selections map[int64]int) bool {
	first, seen := 0, false
	for _, sel := range selections {
		if !seen {
			first, seen = sel, true
			continue
		}
		if sel != first {
			return false
		}
	}
	return true
}

// scoreWinner returns the user with the strictly higher score, or 0 for a tie.
func scoreWinner(scores map[int64]int) int64 {
	var winner int64
	best, tied := -1, false
	for userID, score := range scores {
		switch {
		case score > best:
			best, winner, tied = score, userID, false
		case score == best:
			tied = true
		}
	}
	if tied {
		return 0
	}
	return winner
}
