package saga

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// PaymentCreationFailedHandler starts unwinding a saga whose stock
// was already decremented: it requests the compensating check-in by
// emitting StockIncreased. The payment error rides along so the
// terminal cancellation can say why.
type PaymentCreationFailedHandler struct {
	logger *slog.Logger
}

func NewPaymentCreationFailedHandler(logger *slog.Logger) *PaymentCreationFailedHandler {
	return &PaymentCreationFailedHandler{logger: logger}
}

func (h *PaymentCreationFailedHandler) EventType() domain.EventType {
	return domain.EventPaymentCreationFailed
}

func (h *PaymentCreationFailedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	h.logger.Error("payment creation failed, restoring stock", "order_id", evt.OrderID, "error", evt.Error)

	next := evt.Next(domain.EventStockIncreased)
	return &next
}
