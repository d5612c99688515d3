package gameerrors

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the matchmaking, reconcile, moves, event and
// api packages. Kept in one place to avoid circular imports.
var (
	// Contention errors. Transient: the caller retries or treats them as
	// "another worker already made progress".
	ErrSearchInProgress = errors.New("game search is already in progress for this user")
	ErrUpdateInProgress = errors.New("game update is already in progress")
	ErrVersionMismatch  = errors.New("game row version mismatch")

	// Validation errors surfaced to the transport layer as typed failures.
	ErrGameNotFound         = errors.New("no game found with the given gameID")
	ErrGameNotInProgress    = errors.New("game is currently not in progress")
	ErrGameAlreadyStarted   = errors.New("game has already started")
	ErrNotEnoughPlayers     = errors.New("game does not have enough players")
	ErrNoActiveGame         = errors.New("no active game for this user")
	ErrPlayerNotInGame      = errors.New("player is not part of this game")
	ErrTurnMismatch         = errors.New("turn does not match the game's current turn")
	ErrTurnExpired          = errors.New("turn time limit exceeded")
	ErrSelectionUnavailable = errors.New("selection is not available this turn")
	ErrSelectionOutOfRange  = errors.New("selection must be between 1 and 9")
	ErrMoveAlreadyExists    = errors.New("move already recorded for this turn")

	// ErrActiveGameExists is raised by the unique active_games constraint.
	// Matchmaking self-heals it by re-reading the user's assignment.
	ErrActiveGameExists = errors.New("user is already part of an active game")

	// ErrDataInconsistency indicates a bug: an active-game conflict fired but
	// no assignment row could be found on re-read.
	ErrDataInconsistency = errors.New("active game conflict with no resolvable assignment")
)

// OutOfOrderError reports an event that arrived before its preconditions held,
// e.g. a player turn before the game started.
type OutOfOrderError struct {
	EventType string
	Expected  []string
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("event %q is out of order, expected one of %v to precede it", e.EventType, e.Expected)
}
