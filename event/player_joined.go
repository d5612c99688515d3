package event

import (
	"context"

	"number-duel-server/gameerrors"
)

// playerJoinedHandler admits a player into a not-yet-started game and fires
// STARTED once the second player arrives. A repeat join by the same player is
// absorbed by the dedup key rather than rejected.
type playerJoinedHandler struct{}

func (playerJoinedHandler) Validate(ctx context.Context, log Log, gameID int64, ev Payload) (string, error) {
	join, ok := ev.(*PlayerJoined)
	if !ok {
		return "", wrongPayload(TypePlayerJoined, ev)
	}

	events, err := log.Events(ctx, gameID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", &gameerrors.OutOfOrderError{
			EventType: string(TypePlayerJoined),
			Expected:  []string{string(TypeCreated)},
		}
	}
	if lastOfType(events, TypeStarted) != nil {
		return "", gameerrors.ErrGameAlreadyStarted
	}
	if countOfType(events, TypePlayerJoined) >= RequiredPlayerCount {
		return "", gameerrors.ErrGameAlreadyStarted
	}
	return dedupKey(gameID, TypePlayerJoined, join.PlayerID), nil
}

func (playerJoinedHandler) Process(ctx context.Context, log Log, gameID int64, _ Payload) (Payload, error) {
	joins, err := log.EventsByType(ctx, gameID, TypePlayerJoined)
	if err != nil {
		return nil, err
	}
	if len(joins) != RequiredPlayerCount {
		return nil, nil
	}
	ids := make([]int64, 0, len(joins))
	for _, j := range joins {
		ids = append(ids, j.Payload.(*PlayerJoined).PlayerID)
	}
	return &Started{PlayerIDs: ids}, nil
}

func (playerJoinedHandler) Notify() NotifyPolicy { return NotifyNone }
