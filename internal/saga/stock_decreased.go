package saga

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
	"github.com/monicaDelao/log430-labo8/internal/outbox"
)

// Stager commits one outbox item in its own transaction.
type Stager interface {
	Stage(ctx context.Context, item *outbox.Item) error
}

// OutboxDispatcher acts on a committed outbox item and publishes the
// payment outcome itself.
type OutboxDispatcher interface {
	Process(ctx context.Context, item outbox.Item)
}

// StockDecreasedHandler is the dual-write boundary: the payment
// intent is committed to the outbox before anything tries to act on
// it. If staging fails there is no row and the handler reports
// PaymentCreationFailed; if it succeeds the row survives any crash
// and the sweeper will find it even when the synchronous dispatch
// below never runs.
type StockDecreasedHandler struct {
	store     Stager
	processor OutboxDispatcher
	logger    *slog.Logger
}

func NewStockDecreasedHandler(store Stager, processor OutboxDispatcher, logger *slog.Logger) *StockDecreasedHandler {
	return &StockDecreasedHandler{store: store, processor: processor, logger: logger}
}

func (h *StockDecreasedHandler) EventType() domain.EventType {
	return domain.EventStockDecreased
}

func (h *StockDecreasedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	item := &outbox.Item{
		OrderID:     evt.OrderID,
		UserID:      evt.UserID,
		TotalAmount: evt.TotalAmount,
		OrderItems:  evt.OrderItems,
	}

	if err := h.store.Stage(ctx, item); err != nil {
		h.logger.Error("failed to stage payment intent", "error", err, "order_id", evt.OrderID)
		next := evt.Next(domain.EventPaymentCreationFailed)
		next.Error = err.Error()
		return &next
	}

	// The processor publishes PaymentCreated or PaymentCreationFailed
	// itself, so there is no follow-up for the registry to send.
	h.processor.Process(ctx, *item)
	return nil
}
