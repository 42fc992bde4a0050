// Package saga implements the choreographed order-fulfillment saga:
// one handler per reachable event type, coupled only through the
// shared event vocabulary. Handlers never call each other; every
// transition is a publish on the bus.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// Handler reacts to exactly one event type. It returns the follow-up
// envelope to publish, or nil when the saga step publishes through a
// collaborator or the event is its terminal state. Handlers never
// return errors: a failing step encodes its failure into the next
// envelope so the saga cannot silently stall.
type Handler interface {
	EventType() domain.EventType
	Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Registry routes an inbound envelope to the one handler registered
// for its type and publishes whatever that handler returns. Routing is
// a pure lookup; there is no chaining inside the registry.
type Registry struct {
	handlers  map[domain.EventType]Handler
	publisher Publisher
	logger    *slog.Logger
}

func NewRegistry(publisher Publisher, logger *slog.Logger) *Registry {
	return &Registry{
		handlers:  make(map[domain.EventType]Handler),
		publisher: publisher,
		logger:    logger,
	}
}

func (r *Registry) Register(h Handler) error {
	eventType := h.EventType()
	if _, exists := r.handlers[eventType]; exists {
		return fmt.Errorf("handler already registered for %s", eventType)
	}
	r.handlers[eventType] = h
	return nil
}

// Dispatch decodes one bus message and invokes its handler. Messages
// that do not decode are logged and dropped rather than redelivered
// forever; events without a handler (the terminal ones) are a no-op.
// A failed publish of the follow-up is returned so the consumer does
// not commit the offset and the event is redelivered.
func (r *Registry) Dispatch(ctx context.Context, payload []byte) error {
	var evt domain.Envelope
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.logger.Error("dropping undecodable saga message", "error", err)
		return nil
	}

	handler, ok := r.handlers[evt.Event]
	if !ok {
		r.logger.Info("saga event without handler", "event", evt.Event, "order_id", evt.OrderID)
		return nil
	}

	r.logger.Info("dispatching saga event", "event", evt.Event, "order_id", evt.OrderID)

	next := handler.Handle(ctx, evt)
	if next == nil {
		return nil
	}

	if err := r.publisher.Publish(ctx, next.OrderID, *next); err != nil {
		return fmt.Errorf("publish %s for order %s: %w", next.Event, next.OrderID, err)
	}

	return nil
}
