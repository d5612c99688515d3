package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"number-duel-server/event"
	"number-duel-server/gameerrors"
)

// TxStore exposes the mutating operations of one open transaction. All game
// mutation goes through the five blessed paths (join, append event, advance
// turn, finish, abandon); each is a CAS or a dedup-constrained insert.
type TxStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an existing transaction. Most callers get a TxStore from
// Store.WithTx instead.
func NewTxStore(tx pgx.Tx) *TxStore {
	return &TxStore{tx: tx}
}

// --- event log ---

// Append stores one event, deduplicated on dedupKey. Returns false when the
// key already exists: the event was already handled.
func (s *TxStore) Append(ctx context.Context, gameID int64, ev event.Payload, dedupKey string) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, err
	}
	ct, err := s.tx.Exec(ctx, `
		INSERT INTO game_events (game_id, type, payload, dedup_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (dedup_key) DO NOTHING`,
		gameID, string(ev.EventType()), payload, dedupKey)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// Events returns all of a game's events in append order.
func (s *TxStore) Events(ctx context.Context, gameID int64) ([]event.Stored, error) {
	return s.queryEvents(ctx, `
		SELECT event_id, game_id, type, payload, created_at
		FROM game_events WHERE game_id = $1
		ORDER BY event_id`, gameID)
}

// EventsByType returns the game's events of the given types in append order.
func (s *TxStore) EventsByType(ctx context.Context, gameID int64, types ...event.Type) ([]event.Stored, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return s.queryEvents(ctx, `
		SELECT event_id, game_id, type, payload, created_at
		FROM game_events WHERE game_id = $1 AND type = ANY($2)
		ORDER BY event_id`, gameID, names)
}

func (s *TxStore) queryEvents(ctx context.Context, sql string, args ...any) ([]event.Stored, error) {
	rows, err := s.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.Stored
	for rows.Next() {
		var (
			st      event.Stored
			typ     string
			payload []byte
		)
		if err := rows.Scan(&st.Sequence, &st.GameID, &typ, &payload, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Type = event.Type(typ)
		st.Payload, err = event.Decode(st.Type, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- advisory locks ---

// TryUserSearchLock takes the transaction-scoped lock serializing matchmaking
// searches for one user. False means a concurrent search holds it.
func (s *TxStore) TryUserSearchLock(ctx context.Context, userID int64) (bool, error) {
	return s.tryAdvisoryLock(ctx, UserLockKey(userID))
}

// TryGameUpdateLock takes the transaction-scoped lock serializing
// reconciliation for one game.
func (s *TxStore) TryGameUpdateLock(ctx context.Context, gameID int64) (bool, error) {
	return s.tryAdvisoryLock(ctx, GameLockKey(gameID))
}

func (s *TxStore) tryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	err := s.tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, key).Scan(&acquired)
	return acquired, err
}

// --- matchmaking ---

// OngoingGame is a user's current assignment joined with the game's state.
type OngoingGame struct {
	GameID      int64
	Status      string
	TurnExpired bool
}

// GameVersion is a candidate WAITING game with the version its join CAS must
// match.
type GameVersion struct {
	GameID  int64
	Version int
}

// OngoingGameForUser returns the user's WAITING or INPROGRESS assignment, or
// nil when the user is free for matchmaking.
func (s *TxStore) OngoingGameForUser(ctx context.Context, userID int64) (*OngoingGame, error) {
	var g OngoingGame
	err := s.tx.QueryRow(ctx, `
		SELECT ag.game_id, g.status, COALESCE(g.current_turn_expires_at < now(), false)
		FROM active_games ag
		JOIN games g ON g.game_id = ag.game_id
		WHERE ag.user_id = $1 AND g.status = ANY($2)`,
		userID, []string{StatusWaiting, StatusInProgress}).Scan(&g.GameID, &g.Status, &g.TurnExpired)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SampleWaitingGames returns up to limit WAITING games in random order.
func (s *TxStore) SampleWaitingGames(ctx context.Context, limit int) ([]GameVersion, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT game_id, version FROM games
		WHERE status = $1
		ORDER BY random()
		LIMIT $2`,
		StatusWaiting, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameVersion
	for rows.Next() {
		var gv GameVersion
		if err := rows.Scan(&gv.GameID, &gv.Version); err != nil {
			return nil, err
		}
		out = append(out, gv)
	}
	return out, rows.Err()
}

// JoinGame attempts to place userID into a WAITING game as its second player,
// flipping it to INPROGRESS. The three writes run in a nested transaction: if
// any conflicts, the whole attempt rolls back. Returns ErrActiveGameExists
// when the user already holds an assignment and ErrVersionMismatch when the
// candidate moved on.
func (s *TxStore) JoinGame(ctx context.Context, userID int64, gv GameVersion, expiresAt time.Time) error {
	return s.withSavepoint(ctx, func(sp pgx.Tx) error {
		ct, err := sp.Exec(ctx, `
			INSERT INTO active_games (user_id, game_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING`,
			userID, gv.GameID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return gameerrors.ErrActiveGameExists
		}

		if _, err := sp.Exec(ctx, `
			INSERT INTO game_players (game_id, user_id) VALUES ($1, $2)`,
			gv.GameID, userID); err != nil {
			return err
		}

		ct, err = sp.Exec(ctx, `
			UPDATE games
			SET status = $1, current_turn_expires_at = $2, version = version + 1
			WHERE game_id = $3 AND version = $4 AND status = $5`,
			StatusInProgress, expiresAt, gv.GameID, gv.Version, StatusWaiting)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return gameerrors.ErrVersionMismatch
		}
		return nil
	})
}

// CreateGame inserts a fresh WAITING game with userID as its sole occupant.
// Returns ErrActiveGameExists when the user already holds an assignment.
func (s *TxStore) CreateGame(ctx context.Context, userID int64, joinCode string) (int64, error) {
	var gameID int64
	err := s.withSavepoint(ctx, func(sp pgx.Tx) error {
		if err := sp.QueryRow(ctx, `
			INSERT INTO games (status, join_code) VALUES ($1, $2)
			RETURNING game_id`,
			StatusWaiting, joinCode).Scan(&gameID); err != nil {
			return err
		}

		ct, err := sp.Exec(ctx, `
			INSERT INTO active_games (user_id, game_id) VALUES ($1, $2)
			ON CONFLICT (user_id) DO NOTHING`,
			userID, gameID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return gameerrors.ErrActiveGameExists
		}

		_, err = sp.Exec(ctx, `
			INSERT INTO game_players (game_id, user_id) VALUES ($1, $2)`,
			gameID, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return gameID, nil
}

// withSavepoint runs fn in a nested transaction (a savepoint under pgx).
func (s *TxStore) withSavepoint(ctx context.Context, fn func(sp pgx.Tx) error) error {
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(sp); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return rbErr
		}
		return err
	}
	return sp.Commit(ctx)
}

// --- reconciliation ---

// MoveRow is one persisted move.
type MoveRow struct {
	GameID    int64
	UserID    int64
	TurnID    int
	Selection int
	CreatedAt time.Time
}

// GameSnapshot is everything the reconciler needs to decide a game's fate:
// row state plus per-player scores and ordered move history.
type GameSnapshot struct {
	GameID        int64
	Status        string
	CurrentTurnID int
	TurnExpired   bool
	Version       int
	Scores        map[int64]int
	Moves         map[int64][]MoveRow
}

// GameSnapshot loads the reconciler's view of one game, or nil when the game
// does not exist.
func (s *TxStore) GameSnapshot(ctx context.Context, gameID int64) (*GameSnapshot, error) {
	snap := GameSnapshot{
		Scores: make(map[int64]int),
		Moves:  make(map[int64][]MoveRow),
	}
	err := s.tx.QueryRow(ctx, `
		SELECT game_id, status, current_turn_id,
			COALESCE(current_turn_expires_at < now(), false),
			version
		FROM games WHERE game_id = $1`,
		gameID).Scan(&snap.GameID, &snap.Status, &snap.CurrentTurnID, &snap.TurnExpired, &snap.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.tx.Query(ctx, `
		SELECT gp.user_id, gp.score, m.turn_id, m.selection, m.created_at
		FROM game_players gp
		LEFT JOIN moves m ON m.game_id = gp.game_id AND m.user_id = gp.user_id
		WHERE gp.game_id = $1
		ORDER BY gp.user_id, m.turn_id`,
		gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID    int64
			score     int
			turnID    *int
			selection *int
			createdAt *time.Time
		)
		if err := rows.Scan(&userID, &score, &turnID, &selection, &createdAt); err != nil {
			return nil, err
		}
		snap.Scores[userID] = score
		if snap.Moves[userID] == nil {
			snap.Moves[userID] = []MoveRow{}
		}
		if turnID != nil {
			snap.Moves[userID] = append(snap.Moves[userID], MoveRow{
				GameID: gameID, UserID: userID, TurnID: *turnID,
				Selection: *selection, CreatedAt: *createdAt,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// AbandonGame moves the game to ABANDONED via CAS and frees both players'
// assignments. Returns ErrVersionMismatch when another writer won.
func (s *TxStore) AbandonGame(ctx context.Context, gameID int64, version int, reason string) error {
	ct, err := s.tx.Exec(ctx, `
		UPDATE games
		SET status = $1, outcome_reason = $2, version = version + 1, ended_at = now()
		WHERE game_id = $3 AND version = $4`,
		StatusAbandoned, reason, gameID, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return gameerrors.ErrVersionMismatch
	}
	return s.releaseAssignments(ctx, gameID)
}

// FinishGame moves the game to FINISHED via CAS, recording the outcome.
// winnerID 0 records a draw. Returns ErrVersionMismatch when another writer won.
func (s *TxStore) FinishGame(ctx context.Context, gameID int64, version int, winnerID int64, reason string) error {
	var winner *int64
	if winnerID != 0 {
		winner = &winnerID
	}
	ct, err := s.tx.Exec(ctx, `
		UPDATE games
		SET status = $1, winner_user_id = $2, outcome_reason = $3,
			version = version + 1, ended_at = now()
		WHERE game_id = $4 AND version = $5`,
		StatusFinished, winner, reason, gameID, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return gameerrors.ErrVersionMismatch
	}
	return s.releaseAssignments(ctx, gameID)
}

// AdvanceTurn bumps the game to the next turn via CAS and accumulates each
// player's score by their selection for the turn just completed.
func (s *TxStore) AdvanceTurn(ctx context.Context, gameID int64, version, nextTurnID int, expiresAt time.Time, scoreDeltas map[int64]int) error {
	ct, err := s.tx.Exec(ctx, `
		UPDATE games
		SET current_turn_id = $1, current_turn_expires_at = $2, version = version + 1
		WHERE game_id = $3 AND version = $4`,
		nextTurnID, expiresAt, gameID, version)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return gameerrors.ErrVersionMismatch
	}
	for userID, delta := range scoreDeltas {
		if _, err := s.tx.Exec(ctx, `
			UPDATE game_players SET score = score + $1
			WHERE game_id = $2 AND user_id = $3`,
			delta, gameID, userID); err != nil {
			return err
		}
	}
	return nil
}

func (s *TxStore) releaseAssignments(ctx context.Context, gameID int64) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM active_games WHERE game_id = $1`, gameID)
	return err
}

// --- moves ---

// InsertMove records userID's selection for the game's current turn. The
// composite primary key makes resubmission a no-op, reported as
// ErrMoveAlreadyExists.
func (s *TxStore) InsertMove(ctx context.Context, gameID, userID int64, selection int) (*MoveRow, error) {
	var mv MoveRow
	err := s.tx.QueryRow(ctx, `
		INSERT INTO moves (game_id, user_id, turn_id, selection)
		SELECT g.game_id, $2, g.current_turn_id, $3
		FROM games g WHERE g.game_id = $1
		ON CONFLICT (game_id, user_id, turn_id) DO NOTHING
		RETURNING game_id, user_id, turn_id, selection, created_at`,
		gameID, userID, selection).Scan(&mv.GameID, &mv.UserID, &mv.TurnID, &mv.Selection, &mv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, gameerrors.ErrMoveAlreadyExists
	}
	if err != nil {
		return nil, err
	}
	return &mv, nil
}
