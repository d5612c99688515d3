package event

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"
	"time"

	"number-duel-server/gameerrors"
)

// memLog is an in-memory Log for tests: append-ordered slice plus a dedup set.
type memLog struct {
	events []Stored
	keys   map[string]bool
	seq    int64
}

func newMemLog() *memLog {
	return &memLog{keys: make(map[string]bool)}
}

func (l *memLog) Append(_ context.Context, gameID int64, ev Payload, dedupKey string) (bool, error) {
	if l.keys[dedupKey] {
		return false, nil
	}
	l.keys[dedupKey] = true
	l.seq++
	l.events = append(l.events, Stored{
		Sequence:  l.seq,
		GameID:    gameID,
		Type:      ev.EventType(),
		Payload:   ev,
		CreatedAt: time.Now(),
	})
	return true, nil
}

func (l *memLog) Events(_ context.Context, gameID int64) ([]Stored, error) {
	var out []Stored
	for _, e := range l.events {
		if e.GameID == gameID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLog) EventsByType(_ context.Context, gameID int64, types ...Type) ([]Stored, error) {
	var out []Stored
	for _, e := range l.events {
		if e.GameID == gameID && slices.Contains(types, e.Type) {
			out = append(out, e)
		}
	}
	return out, nil
}

// delivery records one routed notification.
type delivery struct {
	broadcast bool
	playerID  int64
	ev        Payload
}

type recordingRouter struct {
	deliveries []delivery
}

func (r *recordingRouter) Broadcast(_ int64, ev Payload) {
	r.deliveries = append(r.deliveries, delivery{broadcast: true, ev: ev})
}

func (r *recordingRouter) Direct(_ int64, playerID int64, ev Payload) {
	r.deliveries = append(r.deliveries, delivery{playerID: playerID, ev: ev})
}

func (r *recordingRouter) ofType(t Type) []delivery {
	var out []delivery
	for _, d := range r.deliveries {
		if d.ev.EventType() == t {
			out = append(out, d)
		}
	}
	return out
}

type fixture struct {
	log        *memLog
	router     *recordingRouter
	dispatcher *Dispatcher
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		log:    newMemLog(),
		router: &recordingRouter{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	registry := NewRegistry(500*time.Second, func() time.Time { return f.now })
	f.dispatcher = NewDispatcher(registry, f.router)
	return f
}

func (f *fixture) handle(t *testing.T, ev Payload) Result {
	t.Helper()
	res, err := f.dispatcher.Handle(context.Background(), f.log, 1, ev)
	if err != nil {
		t.Fatalf("Handle(%s): %v", ev.EventType(), err)
	}
	return res
}

func (f *fixture) startGame(t *testing.T) {
	t.Helper()
	f.handle(t, &Created{GameID: 1, JoinCode: "ABC123"})
	f.handle(t, &PlayerJoined{PlayerID: 10})
	f.handle(t, &PlayerJoined{PlayerID: 20})
}

func TestSecondJoinStartsGameAndOpensTurnOne(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	events, _ := f.log.Events(context.Background(), 1)
	var types []Type
	for _, e := range events {
		types = append(types, e.Type)
	}
	want := []Type{TypeCreated, TypePlayerJoined, TypePlayerJoined, TypeStarted, TypeTurnStarted}
	if !slices.Equal(types, want) {
		t.Fatalf("stored sequence = %v, want %v", types, want)
	}

	// STARTED is broadcast; turn 1 goes out per player with no blocked numbers.
	if got := f.router.ofType(TypeStarted); len(got) != 1 || !got[0].broadcast {
		t.Fatalf("STARTED deliveries = %+v, want one broadcast", got)
	}
	opened := f.router.ofType(TypeTurnStarted)
	if len(opened) != 2 {
		t.Fatalf("TURN_STARTED deliveries = %d, want 2", len(opened))
	}
	var recipients []int64
	for _, d := range opened {
		if d.broadcast {
			t.Fatal("turn open must be delivered per recipient, not broadcast")
		}
		recipients = append(recipients, d.playerID)
		ts := d.ev.(*TurnStarted)
		if ts.TurnID != 1 {
			t.Fatalf("turn id = %d, want 1", ts.TurnID)
		}
		if len(ts.UnavailableSelections) != 1 {
			t.Fatalf("recipient copy carries %d players' blocked sets, want 1", len(ts.UnavailableSelections))
		}
	}
	sort.Slice(recipients, func(i, j int) bool { return recipients[i] < recipients[j] })
	if !slices.Equal(recipients, []int64{10, 20}) {
		t.Fatalf("recipients = %v, want [10 20]", recipients)
	}
}

func TestThirdJoinRejected(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	_, err := f.dispatcher.Handle(context.Background(), f.log, 1, &PlayerJoined{PlayerID: 30})
	if !errors.Is(err, gameerrors.ErrGameAlreadyStarted) {
		t.Fatalf("err = %v, want ErrGameAlreadyStarted", err)
	}
}

func TestJoinBeforeCreateIsOutOfOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.dispatcher.Handle(context.Background(), f.log, 1, &PlayerJoined{PlayerID: 10})
	var ooo *gameerrors.OutOfOrderError
	if !errors.As(err, &ooo) {
		t.Fatalf("err = %v, want OutOfOrderError", err)
	}
}

func TestDifferentSelectionsAdvanceTurn(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	if res := f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 3}); res != ResultApplied {
		t.Fatalf("first turn result = %v", res)
	}
	// One selection in: nothing completes, nothing is notified.
	if got := f.router.ofType(TypeTurnComplete); len(got) != 0 {
		t.Fatalf("premature TURN_COMPLETE: %+v", got)
	}

	f.handle(t, &PlayerTurn{PlayerID: 20, TurnID: 1, Selection: 5})

	completes := f.router.ofType(TypeTurnComplete)
	if len(completes) != 1 || !completes[0].broadcast {
		t.Fatalf("TURN_COMPLETE deliveries = %+v, want one broadcast", completes)
	}
	tc := completes[0].ev.(*TurnComplete)
	if tc.Results[10].Score != 3 || tc.Results[20].Score != 5 {
		t.Fatalf("scores = %+v", tc.Results)
	}

	// Turn 2 opens with each player's own neighborhood blocked.
	var turn2 []delivery
	for _, d := range f.router.ofType(TypeTurnStarted) {
		if d.ev.(*TurnStarted).TurnID == 2 {
			turn2 = append(turn2, d)
		}
	}
	if len(turn2) != 2 {
		t.Fatalf("turn 2 deliveries = %d, want 2", len(turn2))
	}
	for _, d := range turn2 {
		ts := d.ev.(*TurnStarted)
		want := []int{2, 3, 4}
		if d.playerID == 20 {
			want = []int{4, 5, 6}
		}
		if !slices.Equal(ts.UnavailableSelections[d.playerID], want) {
			t.Fatalf("player %d blocked = %v, want %v", d.playerID, ts.UnavailableSelections[d.playerID], want)
		}
	}
}

func TestEqualSelectionsFinishGameOnScore(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)
	f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 3})
	f.handle(t, &PlayerTurn{PlayerID: 20, TurnID: 1, Selection: 5})

	// 7 is legal for both on turn 2; matching selections end the game.
	f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 2, Selection: 7})
	f.handle(t, &PlayerTurn{PlayerID: 20, TurnID: 2, Selection: 7})

	finished := f.router.ofType(TypeFinished)
	if len(finished) != 1 || !finished[0].broadcast {
		t.Fatalf("FINISHED deliveries = %+v, want one broadcast", finished)
	}
	summary := finished[0].ev.(*Finished).Summary
	if summary.Status != SummaryResult || summary.Winner != 20 || summary.Reason != ReasonScore {
		t.Fatalf("summary = %+v, want player 20 winning on score", summary)
	}
	if summary.Scores[10] != 10 || summary.Scores[20] != 12 {
		t.Fatalf("final scores = %v", summary.Scores)
	}
}

func TestEqualSelectionsWithEqualScoresDraw(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	// Same first selections complete the turn immediately with equal scores.
	f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 4})
	f.handle(t, &PlayerTurn{PlayerID: 20, TurnID: 1, Selection: 4})

	finished := f.router.ofType(TypeFinished)
	if len(finished) != 1 {
		t.Fatalf("FINISHED deliveries = %d, want 1", len(finished))
	}
	summary := finished[0].ev.(*Finished).Summary
	if summary.Status != SummaryDraw || summary.Winner != 0 {
		t.Fatalf("summary = %+v, want draw", summary)
	}
}

func TestRepeatSubmissionIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 3})
	if res := f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 8}); res != ResultDuplicate {
		t.Fatalf("repeat submission result = %v, want ResultDuplicate", res)
	}

	// The original selection stands.
	events, _ := f.log.EventsByType(context.Background(), 1, TypePlayerTurn)
	if len(events) != 1 || events[0].Payload.(*PlayerTurn).Selection != 3 {
		t.Fatalf("stored turns = %+v", events)
	}
}

func TestLateTurnBecomesExpiredEvent(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)

	f.now = f.now.Add(501 * time.Second)

	if res := f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 3}); res != ResultApplied {
		t.Fatalf("late submission result = %v", res)
	}

	if stored, _ := f.log.EventsByType(context.Background(), 1, TypePlayerTurn); len(stored) != 0 {
		t.Fatalf("late turn was stored: %+v", stored)
	}
	expired := f.router.ofType(TypeTurnExpired)
	if len(expired) != 1 || !expired[0].broadcast {
		t.Fatalf("TURN_EXPIRED deliveries = %+v, want one broadcast", expired)
	}
	if expired[0].ev.(*TurnExpired).TurnID != 1 {
		t.Fatalf("expired turn id = %d, want 1", expired[0].ev.(*TurnExpired).TurnID)
	}
}

func TestTurnValidationErrors(t *testing.T) {
	f := newFixture(t)
	f.startGame(t)
	f.handle(t, &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 3})
	f.handle(t, &PlayerTurn{PlayerID: 20, TurnID: 1, Selection: 5})

	tests := []struct {
		name string
		turn *PlayerTurn
		want error
	}{
		{"selection below range", &PlayerTurn{PlayerID: 10, TurnID: 2, Selection: 0}, gameerrors.ErrSelectionOutOfRange},
		{"selection above range", &PlayerTurn{PlayerID: 10, TurnID: 2, Selection: 10}, gameerrors.ErrSelectionOutOfRange},
		{"stale turn id", &PlayerTurn{PlayerID: 10, TurnID: 1, Selection: 7}, gameerrors.ErrTurnMismatch},
		{"unknown player", &PlayerTurn{PlayerID: 99, TurnID: 2, Selection: 7}, gameerrors.ErrPlayerNotInGame},
		{"blocked selection", &PlayerTurn{PlayerID: 10, TurnID: 2, Selection: 3}, gameerrors.ErrSelectionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Handle(context.Background(), f.log, 1, tt.turn)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
