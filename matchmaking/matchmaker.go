package matchmaking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"number-duel-server/event"
	"number-duel-server/gameerrors"
	"number-duel-server/storage"
)

// Store is what matchmaking needs from a transaction-scoped storage handle:
// the row operations plus the game's event log, so assignment writes and the
// lifecycle events they imply land in the same transaction. *storage.TxStore
// implements it; tests use an in-memory fake.
type Store interface {
	event.Log
	TryUserSearchLock(ctx context.Context, userID int64) (bool, error)
	OngoingGameForUser(ctx context.Context, userID int64) (*storage.OngoingGame, error)
	SampleWaitingGames(ctx context.Context, limit int) ([]storage.GameVersion, error)
	JoinGame(ctx context.Context, userID int64, gv storage.GameVersion, expiresAt time.Time) error
	CreateGame(ctx context.Context, userID int64, joinCode string) (int64, error)
}

// Dispatcher applies one event to a game's log and runs its cascade.
// *event.Dispatcher implements it.
type Dispatcher interface {
	Handle(ctx context.Context, log event.Log, gameID int64, ev event.Payload) (event.Result, error)
}

// Service finds or creates a game for a user. It tolerates any number of
// concurrent searchers: the per-user advisory lock bounds duplicate work,
// optimistic versioning bounds lost updates on the game row, and the unique
// active_games.user_id constraint is the final backstop against
// double-assignment.
type Service struct {
	sampleSize int
	turnExpiry time.Duration
	dispatcher Dispatcher
	now        func() time.Time
}

// NewService creates a matchmaking service. sampleSize bounds how many
// WAITING games one search attempts before creating a new game; dispatcher
// receives the lifecycle events each assignment implies.
func NewService(sampleSize int, turnExpiry time.Duration, dispatcher Dispatcher) *Service {
	return &Service{sampleSize: sampleSize, turnExpiry: turnExpiry, dispatcher: dispatcher, now: time.Now}
}

// SearchGameForUser returns the gameID the user should play in, joining a
// waiting game or creating one as needed. Must run inside the transaction
// that owns store. Returns ErrSearchInProgress when a concurrent search
// already holds the user's lock; callers may retry.
func (svc *Service) SearchGameForUser(ctx context.Context, store Store, userID int64) (int64, error) {
	locked, err := store.TryUserSearchLock(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !locked {
		return 0, gameerrors.ErrSearchInProgress
	}

	// Idempotent re-entry: an existing assignment short-circuits the search.
	if ongoing, err := store.OngoingGameForUser(ctx, userID); err != nil {
		return 0, err
	} else if ongoing != nil {
		return ongoing.GameID, nil
	}

	gameID, joined, err := svc.searchWaitingGames(ctx, store, userID)
	if err != nil {
		return 0, err
	}
	if joined {
		return gameID, nil
	}

	joinCode := newJoinCode()
	gameID, err = store.CreateGame(ctx, userID, joinCode)
	if errors.Is(err, gameerrors.ErrActiveGameExists) {
		return svc.recoverAssignment(ctx, store, userID)
	}
	if err != nil {
		return 0, err
	}
	// Open the new game's event log with its creation and the creator's join.
	if _, err := svc.dispatcher.Handle(ctx, store, gameID, &event.Created{GameID: gameID, JoinCode: joinCode}); err != nil {
		return 0, err
	}
	if _, err := svc.dispatcher.Handle(ctx, store, gameID, &event.PlayerJoined{PlayerID: userID}); err != nil {
		return 0, err
	}
	slog.Info("created new waiting game", "tag", "matchmaking", "game_id", gameID, "user_id", userID)
	return gameID, nil
}

// searchWaitingGames samples candidates and tries each until a join sticks.
// Version mismatches mean another searcher won that candidate; move on.
func (svc *Service) searchWaitingGames(ctx context.Context, store Store, userID int64) (int64, bool, error) {
	candidates, err := store.SampleWaitingGames(ctx, svc.sampleSize)
	if err != nil {
		return 0, false, err
	}
	for _, gv := range candidates {
		err := store.JoinGame(ctx, userID, gv, svc.now().Add(svc.turnExpiry))
		switch {
		case err == nil:
			// The second join starts the game and opens turn 1 via cascade.
			if _, err := svc.dispatcher.Handle(ctx, store, gv.GameID, &event.PlayerJoined{PlayerID: userID}); err != nil {
				return 0, false, err
			}
			slog.Info("joined waiting game", "tag", "matchmaking", "game_id", gv.GameID, "user_id", userID)
			return gv.GameID, true, nil
		case errors.Is(err, gameerrors.ErrVersionMismatch):
			slog.Info("candidate game was already updated", "tag", "matchmaking", "game_id", gv.GameID)
			continue
		case errors.Is(err, gameerrors.ErrActiveGameExists):
			gameID, rerr := svc.recoverAssignment(ctx, store, userID)
			if rerr != nil {
				return 0, false, rerr
			}
			return gameID, true, nil
		default:
			return 0, false, err
		}
	}
	return 0, false, nil
}

// recoverAssignment self-heals an active-game conflict for the searching user
// by re-reading their now-existing assignment. Finding none is a data
// inconsistency, not a recoverable race.
func (svc *Service) recoverAssignment(ctx context.Context, store Store, userID int64) (int64, error) {
	ongoing, err := store.OngoingGameForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if ongoing == nil {
		return 0, gameerrors.ErrDataInconsistency
	}
	return ongoing.GameID, nil
}

// newJoinCode returns a short shareable code for a freshly created game.
func newJoinCode() string {
	return strings.ToUpper(uuid.NewString()[:6])
}
