package event

import "context"

// finishedHandler closes the log. Terminal: no follow-up, everyone is told.
type finishedHandler struct{}

func (finishedHandler) Validate(_ context.Context, _ Log, gameID int64, ev Payload) (string, error) {
	if _, ok := ev.(*Finished); !ok {
		return "", wrongPayload(TypeFinished, ev)
	}
	return dedupKey(gameID, TypeFinished), nil
}

func (finishedHandler) Process(context.Context, Log, int64, Payload) (Payload, error) {
	return nil, nil
}

func (finishedHandler) Notify() NotifyPolicy { return NotifyBroadcast }
