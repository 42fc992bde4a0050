package saga

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// StockDecreaseFailedHandler is the compensation entry point for a
// stock shortage. Nothing was decremented, so there is nothing to
// restore: the saga goes straight to cancellation. This handler may
// never drop the saga, so it always produces an OrderCancelled with a
// non-empty reason.
type StockDecreaseFailedHandler struct {
	logger *slog.Logger
}

func NewStockDecreaseFailedHandler(logger *slog.Logger) *StockDecreaseFailedHandler {
	return &StockDecreaseFailedHandler{logger: logger}
}

func (h *StockDecreaseFailedHandler) EventType() domain.EventType {
	return domain.EventStockDecreaseFailed
}

func (h *StockDecreaseFailedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	h.logger.Error("stock decrease failed, cancelling order", "order_id", evt.OrderID, "error", evt.Error)

	reason := evt.Error
	if reason == "" {
		reason = "insufficient stock"
	}

	next := evt.Next(domain.EventOrderCancelled)
	next.CancellationReason = reason
	return &next
}
