package event

import "context"

// createdHandler stores the game's creation fact. There is nothing to
// validate: creation is the first event of every log.
type createdHandler struct{}

func (createdHandler) Validate(_ context.Context, _ Log, gameID int64, ev Payload) (string, error) {
	if _, ok := ev.(*Created); !ok {
		return "", wrongPayload(TypeCreated, ev)
	}
	return dedupKey(gameID, TypeCreated), nil
}

func (createdHandler) Process(context.Context, Log, int64, Payload) (Payload, error) {
	return nil, nil
}

func (createdHandler) Notify() NotifyPolicy { return NotifyNone }
