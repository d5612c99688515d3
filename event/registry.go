package event

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotifyPolicy classifies how a processed event reaches players.
type NotifyPolicy int

const (
	// NotifyNone: no delivery (silent ack on the primary request path).
	NotifyNone NotifyPolicy = iota
	// NotifyBroadcast: identical payload to every game participant.
	NotifyBroadcast
	// NotifyDirect: per-recipient payload, redacted for that recipient.
	NotifyDirect
)

// Handler validates and processes one event type. Validate reads the current
// event log (not the reduced aggregate) so that precondition checks and the
// append land in the same transaction; it returns the event's dedup key.
// Process may emit at most one follow-up event.
type Handler interface {
	Validate(ctx context.Context, log Log, gameID int64, ev Payload) (dedupKey string, err error)
	Process(ctx context.Context, log Log, gameID int64, ev Payload) (Payload, error)
	Notify() NotifyPolicy
}

// Registry maps each event type to its handler. The mapping is total over the
// closed type set; a missing entry at dispatch time is a configuration bug.
type Registry struct {
	handlers map[Type]Handler
}

// NewRegistry builds the full handler table. turnExpiry is the length of the
// window players have per turn; now is the clock (injectable for tests).
func NewRegistry(turnExpiry time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{handlers: map[Type]Handler{
		TypeCreated:      createdHandler{},
		TypePlayerJoined: playerJoinedHandler{},
		TypeStarted:      startedHandler{expiry: turnExpiry, now: now},
		TypeTurnStarted:  turnStartedHandler{},
		TypePlayerTurn:   playerTurnHandler{now: now},
		TypeTurnComplete: turnCompleteHandler{expiry: turnExpiry, now: now},
		TypeTurnExpired:  turnExpiredHandler{},
		TypeFinished:     finishedHandler{},
	}}
}

// Lookup returns the handler for t.
func (r *Registry) Lookup(t Type) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// dedupKey builds the deterministic identity fingerprint for an event. The
// storage layer enforces uniqueness on it, turning concurrent appends of the
// same logical event into an at-most-once guarantee.
func dedupKey(gameID int64, t Type, parts ...int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(gameID, 10))
	b.WriteByte('-')
	b.WriteString(string(t))
	for _, p := range parts {
		b.WriteByte('-')
		b.WriteString(strconv.FormatInt(p, 10))
	}
	return b.String()
}

// wrongPayload is returned when a handler receives a payload whose concrete
// type does not match its event type; this indicates a wiring bug.
func wrongPayload(t Type, ev Payload) error {
	return fmt.Errorf("handler for %s received payload of type %s", t, ev.EventType())
}
