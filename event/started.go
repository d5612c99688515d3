package event

import (
	"context"
	"time"

	"number-duel-server/gameerrors"
)

// startedHandler begins the match and opens turn 1 with no blocked numbers.
type startedHandler struct {
	expiry time.Duration
	now    func() time.Time
}

func (startedHandler) Validate(ctx context.Context, log Log, gameID int64, ev Payload) (string, error) {
	if _, ok := ev.(*Started); !ok {
		return "", wrongPayload(TypeStarted, ev)
	}
	events, err := log.EventsByType(ctx, gameID, TypePlayerJoined)
	if err != nil {
		return "", err
	}
	if len(events) != RequiredPlayerCount {
		return "", gameerrors.ErrNotEnoughPlayers
	}
	return dedupKey(gameID, TypeStarted), nil
}

func (h startedHandler) Process(_ context.Context, _ Log, _ int64, ev Payload) (Payload, error) {
	started := ev.(*Started)
	sels := make(map[int64][]int, len(started.PlayerIDs))
	for _, id := range started.PlayerIDs {
		sels[id] = []int{}
	}
	return &TurnStarted{
		TurnID:                1,
		ExpiresAt:             h.now().Add(h.expiry),
		UnavailableSelections: sels,
	}, nil
}

func (startedHandler) Notify() NotifyPolicy { return NotifyBroadcast }
