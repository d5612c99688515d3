package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"number-duel-server/gameerrors"
)

// Game lifecycle statuses as stored in games.status.
const (
	StatusWaiting    = "WAITING"
	StatusInProgress = "INPROGRESS"
	StatusFinished   = "FINISHED"
	StatusAbandoned  = "ABANDONED"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS users (
	user_id    BIGSERIAL PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS games (
	game_id                 BIGSERIAL PRIMARY KEY,
	status                  TEXT NOT NULL DEFAULT 'WAITING',
	join_code               TEXT NOT NULL DEFAULT '',
	current_turn_id         INT NOT NULL DEFAULT 1,
	current_turn_expires_at TIMESTAMPTZ,
	winner_user_id          BIGINT,
	outcome_reason          TEXT,
	version                 INT NOT NULL DEFAULT 1,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	ended_at                TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);
CREATE TABLE IF NOT EXISTS active_games (
	user_id    BIGINT PRIMARY KEY REFERENCES users(user_id),
	game_id    BIGINT NOT NULL REFERENCES games(game_id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_active_games_game_id ON active_games(game_id);
CREATE TABLE IF NOT EXISTS game_players (
	game_id    BIGINT NOT NULL REFERENCES games(game_id),
	user_id    BIGINT NOT NULL REFERENCES users(user_id),
	score      INT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (game_id, user_id)
);
CREATE TABLE IF NOT EXISTS moves (
	game_id    BIGINT NOT NULL REFERENCES games(game_id),
	user_id    BIGINT NOT NULL REFERENCES users(user_id),
	turn_id    INT NOT NULL,
	selection  INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (game_id, user_id, turn_id)
);
CREATE TABLE IF NOT EXISTS game_events (
	event_id   BIGSERIAL PRIMARY KEY,
	game_id    BIGINT NOT NULL REFERENCES games(game_id),
	type       TEXT NOT NULL,
	payload    JSONB NOT NULL,
	dedup_key  TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_game_events_game_id ON game_events(game_id);
`

// Store owns the Postgres connection pool. Per-request work runs through
// WithTx on a transaction-scoped TxStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres and ensures the schema exists.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to Postgres", "tag", "storage")
	return &Store{pool: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn inside one transaction and commits if fn returns nil. The
// TxStore handed to fn is only valid for the duration of the call; advisory
// locks taken through it release when the transaction ends.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, ts *TxStore) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(ctx, &TxStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// MoveView is one recorded move in a game details view.
type MoveView struct {
	TurnID    int `json:"turnID"`
	Selection int `json:"selection"`
}

// GameDetails is the complete read model of a game served over HTTP: row
// state plus every player's ordered move list.
type GameDetails struct {
	GameID        int64                `json:"gameID"`
	Status        string               `json:"status"`
	CurrentTurnID int                  `json:"currentTurnID"`
	TurnExpired   bool                 `json:"turnExpired"`
	Users         map[int64][]MoveView `json:"users"`
	Version       int                  `json:"version"`
}

// GameDetails loads the read model for one game. It deliberately takes no
// advisory lock: this same view serves plain state reads, while mutation paths
// lock separately before acting on it.
func (s *Store) GameDetails(ctx context.Context, gameID int64) (*GameDetails, error) {
	var d GameDetails
	err := s.pool.QueryRow(ctx, `
		SELECT game_id, status, current_turn_id,
			COALESCE(current_turn_expires_at < now(), false),
			version
		FROM games WHERE game_id = $1`,
		gameID).Scan(&d.GameID, &d.Status, &d.CurrentTurnID, &d.TurnExpired, &d.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, gameerrors.ErrGameNotFound
		}
		return nil, err
	}

	d.Users = make(map[int64][]MoveView)
	rows, err := s.pool.Query(ctx, `
		SELECT gp.user_id, m.turn_id, m.selection
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
		var userID int64
		var turnID, selection *int
		if err := rows.Scan(&userID, &turnID, &selection); err != nil {
			return nil, err
		}
		if d.Users[userID] == nil {
			d.Users[userID] = []MoveView{}
		}
		if turnID != nil {
			d.Users[userID] = append(d.Users[userID], MoveView{TurnID: *turnID, Selection: *selection})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListExpiredInProgress returns the IDs of INPROGRESS games whose current turn
// deadline has passed. Used by the periodic reconciliation sweep.
func (s *Store) ListExpiredInProgress(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT game_id FROM games
		WHERE status = $1 AND current_turn_expires_at < now()`,
		StatusInProgress)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// EnsureUser inserts a user by name if missing and returns the user ID.
func (s *Store) EnsureUser(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING user_id`,
		username).Scan(&id)
	return id, err
}
