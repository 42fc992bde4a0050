package saga

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// OrderModifier is the payment-confirmation slice of the orders write
// model: a best-effort partial update that reports success instead of
// failing.
type OrderModifier interface {
	SetPaymentDetails(ctx context.Context, orderID string, isPaid *bool, paymentID *string) bool
}

// PaymentCreatedHandler closes the happy path: it stamps the order
// paid and records the payment link. PaymentCreated is the saga's
// paid terminal state, so there is no follow-up event.
type PaymentCreatedHandler struct {
	orders OrderModifier
	logger *slog.Logger
}

func NewPaymentCreatedHandler(orders OrderModifier, logger *slog.Logger) *PaymentCreatedHandler {
	return &PaymentCreatedHandler{orders: orders, logger: logger}
}

func (h *PaymentCreatedHandler) EventType() domain.EventType {
	return domain.EventPaymentCreated
}

func (h *PaymentCreatedHandler) Handle(ctx context.Context, evt domain.Envelope) *domain.Envelope {
	isPaid := true
	paymentID := evt.PaymentID

	if !h.orders.SetPaymentDetails(ctx, evt.OrderID, &isPaid, &paymentID) {
		h.logger.Error("failed to record payment on order", "order_id", evt.OrderID, "payment_id", paymentID)
		return nil
	}

	h.logger.Info("order paid", "order_id", evt.OrderID, "payment_id", paymentID)
	return nil
}
