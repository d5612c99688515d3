package reconcile

import (
	"context"
	"log/slog"

	"number-duel-server/storage"
)

// Pool is the pool-level storage surface the sweeper needs.
// *storage.Store implements it.
type Pool interface {
	ListExpiredInProgress(ctx context.Context) ([]int64, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx *storage.TxStore) error) error
}

// Sweeper periodically finds in-progress games whose turn deadline passed
// and reconciles each one. Players who close their client mid-game never
// send another request, so expiry has to be driven server-side.
type Sweeper struct {
	pool       Pool
	reconciler *Reconciler
}

func NewSweeper(pool Pool, reconciler *Reconciler) *Sweeper {
	return &Sweeper{pool: pool, reconciler: reconciler}
}

// Sweep runs one pass. Per-game failures are logged and do not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	gameIDs, err := s.pool.ListExpiredInProgress(ctx)
	if err != nil {
		slog.Error("listing expired games failed", "tag", "reconcile", "error", err)
		return
	}
	for _, gameID := range gameIDs {
		err := s.pool.WithTx(ctx, func(ctx context.Context, tx *storage.TxStore) error {
			return s.reconciler.UpdateGameState(ctx, tx, gameID)
		})
		if err != nil {
			slog.Error("reconciling expired game failed", "tag", "reconcile", "game_id", gameID, "error", err)
		}
	}
	if len(gameIDs) > 0 {
		slog.Info("expired game sweep complete", "tag", "reconcile", "count", len(gameIDs))
	}
}
