package ws

import (
	"errors"
	"strings"
	"testing"

	"number-duel-server/event"
	"number-duel-server/gameerrors"
)

func testClient(hub *Hub, gameID, userID int64) *Client {
	return &Client{
		hub:    hub,
		send:   make(chan []byte, 8),
		userID: userID,
		gameID: gameID,
	}
}

func drain(c *Client) int {
	n := 0
	for {
		select {
		case <-c.send:
			n++
		default:
			return n
		}
	}
}

func TestBroadcastReachesAllGameClients(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient(hub, 1, 10)
	b := testClient(hub, 1, 20)
	other := testClient(hub, 2, 30)
	for _, c := range []*Client{a, b, other} {
		if !hub.register(c) {
			t.Fatal("register refused")
		}
	}

	hub.Broadcast(1, &event.TurnExpired{TurnID: 3})

	if drain(a) != 1 || drain(b) != 1 {
		t.Fatal("both game 1 clients must receive the broadcast")
	}
	if drain(other) != 0 {
		t.Fatal("game 2 client must not receive game 1 events")
	}
}

func TestDirectReachesOnlyTheRecipient(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient(hub, 1, 10)
	b := testClient(hub, 1, 20)
	hub.register(a)
	hub.register(b)

	hub.Direct(1, 10, &event.TurnStarted{TurnID: 2, UnavailableSelections: map[int64][]int{10: {4, 5, 6}}})

	if drain(a) != 1 {
		t.Fatal("recipient did not receive the direct event")
	}
	if drain(b) != 0 {
		t.Fatal("direct event leaked to another player")
	}
}

func TestUnregisteredClientReceivesNothing(t *testing.T) {
	hub := NewHub(nil, nil)
	a := testClient(hub, 1, 10)
	hub.register(a)
	hub.unregister(a)

	hub.Broadcast(1, &event.TurnExpired{TurnID: 1})

	// The send channel is closed on unregister; SafeSend absorbs the panic.
	select {
	case _, ok := <-a.send:
		if ok {
			t.Fatal("closed client received an event")
		}
	default:
	}
}

func TestShutdownRefusesNewRegistrations(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Shutdown()

	if hub.register(testClient(hub, 1, 10)) {
		t.Fatal("register must refuse after shutdown")
	}
}

func TestRejectionMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{gameerrors.ErrTurnMismatch, "no longer current"},
		{gameerrors.ErrSelectionUnavailable, "unavailable"},
		{gameerrors.ErrSelectionOutOfRange, "between 1 and 9"},
		{gameerrors.ErrPlayerNotInGame, "not part of this game"},
		{gameerrors.ErrGameNotFound, "not found"},
		{errors.New("pq: connection reset"), "Could not apply"},
	}
	for _, tt := range tests {
		if got := rejectionMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("rejectionMessage(%v) = %q, want substring %q", tt.err, got, tt.want)
		}
	}
}
