package saga

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// StockCheckOuter decrements stock for a set of order lines, all or
// nothing, inside one transaction.
type StockCheckOuter interface {
	CheckOut(ctx context.Context, items []domain.EventItem) error
}

// OrderCreatedHandler is the saga's first forward step: check the
// ordered quantities out of stock and report which way it went.
type OrderCreatedHandler struct {
	stock  StockCheckOuter
	logger *slog.Logger
}

func NewOrderCreatedHandler(stock StockCheckOuter, logger *slog.Logger) *OrderCreatedHandler {
	return &OrderCreatedHandler{stock: stock, logger: logger}
}

func (h *OrderCreatedHandler) EventType() domain.EventType {
	return domain.EventOrderCreated
}

func (h *OrderCreatedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	if err := h.stock.CheckOut(ctx, evt.OrderItems); err != nil {
		h.logger.Error("stock check-out failed", "error", err, "order_id", evt.OrderID)
		next := evt.Next(domain.EventStockDecreaseFailed)
		next.Error = err.Error()
		return &next
	}

	h.logger.Info("stock checked out", "order_id", evt.OrderID)
	next := evt.Next(domain.EventStockDecreased)
	return &next
}
