package event

import "context"

// turnStartedHandler stores the turn opening. The event is produced internally
// only (by STARTED or TURN_COMPLETE processing), so there is no precondition
// to check; the dedup key absorbs replays.
type turnStartedHandler struct{}

func (turnStartedHandler) Validate(_ context.Context, _ Log, gameID int64, ev Payload) (string, error) {
	ts, ok := ev.(*TurnStarted)
	if !ok {
		return "", wrongPayload(TypeTurnStarted, ev)
	}
	return dedupKey(gameID, TypeTurnStarted, int64(ts.TurnID)), nil
}

func (turnStartedHandler) Process(context.Context, Log, int64, Payload) (Payload, error) {
	return nil, nil
}

// Turn openings are delivered per-player so that nobody learns another
// player's blocked numbers.
func (turnStartedHandler) Notify() NotifyPolicy { return NotifyDirect }
