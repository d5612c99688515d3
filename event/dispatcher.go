package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"number-duel-server/gameerrors"
)

// Result reports what a dispatch did with the inbound event.
type Result int

const (
	// ResultApplied: the event was appended and its cascade ran.
	ResultApplied Result = iota
	// ResultDuplicate: the event's dedup key already existed; nothing was
	// stored, notified, or cascaded.
	ResultDuplicate
)

// NotificationRouter delivers processed events to players. Implementations
// must not block: delivery happens inside the dispatch transaction.
type NotificationRouter interface {
	Broadcast(gameID int64, ev Payload)
	Direct(gameID, playerID int64, ev Payload)
}

// DirectPayload is implemented by events that fan out per-recipient with
// recipient-specific redaction.
type DirectPayload interface {
	Payload
	Recipients() []int64
	ForRecipient(playerID int64) Payload
}

// Dispatcher orchestrates validate → append → notify → cascade for inbound
// events. Follow-up events run through an explicit work queue rather than
// recursion; depth is bounded by the event-type chain, so the queue never
// holds more than one pending event in practice.
type Dispatcher struct {
	registry *Registry
	router   NotificationRouter
}

// NewDispatcher wires the handler registry to a notification router. router
// may be nil (e.g. offline replay tooling); events are then processed silently.
func NewDispatcher(registry *Registry, router NotificationRouter) *Dispatcher {
	return &Dispatcher{registry: registry, router: router}
}

// Handle processes one inbound event and its cascade against the given
// transaction-scoped log. The caller owns the transaction; everything Handle
// does is atomic with respect to concurrent dispatchers. A validation failure
// of a late player turn is converted into a TURN_EXPIRED event rather than
// surfaced; all other validation errors propagate unmodified.
func (d *Dispatcher) Handle(ctx context.Context, log Log, gameID int64, ev Payload) (Result, error) {
	queue := []Payload{ev}
	inbound := true
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		h, ok := d.registry.Lookup(next.EventType())
		if !ok {
			return 0, fmt.Errorf("no handler registered for event type %q", next.EventType())
		}

		key, err := h.Validate(ctx, log, gameID, next)
		if err != nil {
			if pt, late := next.(*PlayerTurn); late && errors.Is(err, gameerrors.ErrTurnExpired) {
				queue = append(queue, &TurnExpired{TurnID: pt.TurnID})
				inbound = false
				continue
			}
			return 0, err
		}

		stored, err := log.Append(ctx, gameID, next, key)
		if err != nil {
			return 0, err
		}
		if !stored {
			if inbound {
				return ResultDuplicate, nil
			}
			slog.Info("duplicate follow-up event dropped", "tag", "event", "game_id", gameID, "type", next.EventType())
			continue
		}

		d.notify(gameID, h.Notify(), next)

		followUp, err := h.Process(ctx, log, gameID, next)
		if err != nil {
			return 0, err
		}
		if followUp != nil {
			queue = append(queue, followUp)
		}
		inbound = false
	}
	return ResultApplied, nil
}

func (d *Dispatcher) notify(gameID int64, policy NotifyPolicy, ev Payload) {
	if d.router == nil || policy == NotifyNone {
		return
	}
	if policy == NotifyBroadcast {
		d.router.Broadcast(gameID, ev)
		return
	}
	direct, ok := ev.(DirectPayload)
	if !ok {
		slog.Error("direct notify policy on event without recipients", "tag", "event", "type", ev.EventType())
		return
	}
	for _, playerID := range direct.Recipients() {
		d.router.Direct(gameID, playerID, direct.ForRecipient(playerID))
	}
}
