package reconcile

import (
	"context"
	"testing"
	"time"

	"number-duel-server/gameerrors"
	"number-duel-server/storage"
)

// action records one mutating call the reconciler made.
type action struct {
	kind     string
	winnerID int64
	reason   string
	turnID   int
	deltas   map[int64]int
}

type fakeStore struct {
	snap      *storage.GameSnapshot
	lockBusy  bool
	mutateErr error
	actions   []action
}

func (f *fakeStore) TryGameUpdateLock(context.Context, int64) (bool, error) {
	return !f.lockBusy, nil
}

func (f *fakeStore) GameSnapshot(context.Context, int64) (*storage.GameSnapshot, error) {
	return f.snap, nil
}

func (f *fakeStore) AbandonGame(_ context.Context, _ int64, _ int, reason string) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.actions = append(f.actions, action{kind: "abandon", reason: reason})
	return nil
}

func (f *fakeStore) FinishGame(_ context.Context, _ int64, _ int, winnerID int64, reason string) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.actions = append(f.actions, action{kind: "finish", winnerID: winnerID, reason: reason})
	return nil
}

func (f *fakeStore) AdvanceTurn(_ context.Context, _ int64, _ int, nextTurnID int, _ time.Time, deltas map[int64]int) error {
	if f.mutateErr != nil {
		return f.mutateErr
	}
	f.actions = append(f.actions, action{kind: "advance", turnID: nextTurnID, deltas: deltas})
	return nil
}

func move(turnID, selection int) storage.MoveRow {
	return storage.MoveRow{TurnID: turnID, Selection: selection}
}

func inProgressSnap() *storage.GameSnapshot {
	return &storage.GameSnapshot{
		GameID:        1,
		Status:        storage.StatusInProgress,
		CurrentTurnID: 2,
		Version:       4,
		Scores:        map[int64]int{10: 3, 20: 5},
		Moves: map[int64][]storage.MoveRow{
			10: {move(1, 3)},
			20: {move(1, 5)},
		},
	}
}

func reconcileGame(t *testing.T, store *fakeStore) {
	t.Helper()
	r := New(500 * time.Second)
	if err := r.UpdateGameState(context.Background(), store, 1); err != nil {
		t.Fatalf("UpdateGameState: %v", err)
	}
}

func (f *fakeStore) only(t *testing.T) action {
	t.Helper()
	if len(f.actions) != 1 {
		t.Fatalf("actions = %+v, want exactly one", f.actions)
	}
	return f.actions[0]
}

func TestMissingGameIsNoOp(t *testing.T) {
	store := &fakeStore{}
	reconcileGame(t, store)
	if len(store.actions) != 0 {
		t.Fatalf("actions = %+v, want none", store.actions)
	}
}

func TestBusyLockIsNoOp(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap(), lockBusy: true}
	store.snap.TurnExpired = true
	reconcileGame(t, store)
	if len(store.actions) != 0 {
		t.Fatalf("actions = %+v, want none", store.actions)
	}
}

func TestFinishedGameIsNoOp(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.Status = storage.StatusFinished
	reconcileGame(t, store)
	if len(store.actions) != 0 {
		t.Fatalf("actions = %+v, want none", store.actions)
	}
}

func TestOpenTurnIsNoOp(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	// Turn 2 has no moves yet and has not expired.
	reconcileGame(t, store)
	if len(store.actions) != 0 {
		t.Fatalf("actions = %+v, want none", store.actions)
	}
}

func TestExpiredTurnWithNoMovesAbandonsGame(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.TurnExpired = true

	reconcileGame(t, store)
	got := store.only(t)
	if got.kind != "abandon" || got.reason != ReasonAbandoned {
		t.Fatalf("action = %+v, want abandon", got)
	}
}

func TestExpiredTurnWithOneMoverFinishesForMover(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.TurnExpired = true
	store.snap.Moves[10] = append(store.snap.Moves[10], move(2, 7))

	reconcileGame(t, store)
	got := store.only(t)
	if got.kind != "finish" || got.winnerID != 10 || got.reason != ReasonTurnExpired {
		t.Fatalf("action = %+v, want finish for player 10", got)
	}
}

func TestCompleteTurnWithDifferentSelectionsAdvances(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.Moves[10] = append(store.snap.Moves[10], move(2, 7))
	store.snap.Moves[20] = append(store.snap.Moves[20], move(2, 8))

	reconcileGame(t, store)
	got := store.only(t)
	if got.kind != "advance" || got.turnID != 3 {
		t.Fatalf("action = %+v, want advance to turn 3", got)
	}
	if got.deltas[10] != 7 || got.deltas[20] != 8 {
		t.Fatalf("score deltas = %v", got.deltas)
	}
}

func TestCompleteTurnWithEqualSelectionsFinishesOnScore(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.Moves[10] = append(store.snap.Moves[10], move(2, 7))
	store.snap.Moves[20] = append(store.snap.Moves[20], move(2, 7))

	reconcileGame(t, store)
	got := store.only(t)
	if got.kind != "finish" || got.winnerID != 20 || got.reason != ReasonScore {
		t.Fatalf("action = %+v, want finish for higher score", got)
	}
}

func TestCompleteTurnWithEqualSelectionsAndScoresDraws(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.Scores = map[int64]int{10: 5, 20: 5}
	store.snap.Moves[10] = append(store.snap.Moves[10], move(2, 7))
	store.snap.Moves[20] = append(store.snap.Moves[20], move(2, 7))

	reconcileGame(t, store)
	got := store.only(t)
	if got.kind != "finish" || got.winnerID != 0 || got.reason != ReasonDraw {
		t.Fatalf("action = %+v, want drawn finish", got)
	}
}

func TestLostVersionRaceIsNoError(t *testing.T) {
	store := &fakeStore{snap: inProgressSnap()}
	store.snap.TurnExpired = true
	store.mutateErr = gameerrors.ErrVersionMismatch

	r := New(500 * time.Second)
	if err := r.UpdateGameState(context.Background(), store, 1); err != nil {
		t.Fatalf("lost race must be benign, got %v", err)
	}
}
