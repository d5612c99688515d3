package event

import "context"

// turnExpiredHandler records a selection that arrived after the deadline. The
// game row itself is resolved by the reconciler's expiry branches; players are
// told the turn is over.
type turnExpiredHandler struct{}

func (turnExpiredHandler) Validate(_ context.Context, _ Log, gameID int64, ev Payload) (string, error) {
	te, ok := ev.(*TurnExpired)
	if !ok {
		return "", wrongPayload(TypeTurnExpired, ev)
	}
	return dedupKey(gameID, TypeTurnExpired, int64(te.TurnID)), nil
}

func (turnExpiredHandler) Process(context.Context, Log, int64, Payload) (Payload, error) {
	return nil, nil
}

func (turnExpiredHandler) Notify() NotifyPolicy { return NotifyBroadcast }
