package saga

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// StockCheckIner restores previously checked-out stock inside one
// transaction.
type StockCheckIner interface {
	CheckIn(ctx context.Context, items []domain.EventItem) error
}

// StockIncreasedHandler performs the compensating stock check-in. The
// saga reaches OrderCancelled whether or not the check-in works:
// abandoning the cancellation would leave the order permanently
// stuck, so a failed compensation is recorded on the terminal event
// instead, where operators can see the inventory is off.
type StockIncreasedHandler struct {
	stock  StockCheckIner
	logger *slog.Logger
}

func NewStockIncreasedHandler(stock StockCheckIner, logger *slog.Logger) *StockIncreasedHandler {
	return &StockIncreasedHandler{stock: stock, logger: logger}
}

func (h *StockIncreasedHandler) EventType() domain.EventType {
	return domain.EventStockIncreased
}

func (h *StockIncreasedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	next := evt.Next(domain.EventOrderCancelled)
	if next.CancellationReason == "" && evt.Error != "" {
		next.CancellationReason = fmt.Sprintf("payment creation failed: %s", evt.Error)
	}

	if err := h.stock.CheckIn(ctx, evt.OrderItems); err != nil {
		h.logger.Error("stock compensation failed", "error", err, "order_id", evt.OrderID)
		next.StockCompensationError = err.Error()
		return &next
	}

	h.logger.Info("stock restored", "order_id", evt.OrderID)
	return &next
}
