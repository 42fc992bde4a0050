package outbox

import (
	"context"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// ItemStore is the slice of the outbox store the processor needs.
type ItemStore interface {
	Claim(ctx context.Context, id string) (bool, error)
	MarkFailed(ctx context.Context, id string) error
}

// PaymentCreator initiates payment creation with the payments
// collaborator and returns the issued payment id.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, orderID, userID string, amount int64) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Processor turns a committed outbox item into an attempt to create a
// payment, and reports the outcome onto the bus. It is invoked both
// synchronously right after staging and by the background sweeper, so
// it has to tolerate seeing the same item more than once: the claim
// makes the second sighting a no-op.
type Processor struct {
	store     ItemStore
	payments  PaymentCreator
	publisher Publisher
	logger    *slog.Logger
}

func NewProcessor(store ItemStore, payments PaymentCreator, publisher Publisher, logger *slog.Logger) *Processor {
	return &Processor{
		store:     store,
		payments:  payments,
		publisher: publisher,
		logger:    logger,
	}
}

// Process advances one staged item toward payment creation. Every
// path that claimed the row publishes exactly one follow-up event,
// PaymentCreated or PaymentCreationFailed; an unclaimed row publishes
// nothing because whoever claimed it already did.
func (p *Processor) Process(ctx context.Context, item Item) {
	evt := domain.Envelope{
		OrderID:     item.OrderID,
		UserID:      item.UserID,
		TotalAmount: item.TotalAmount,
		OrderItems:  item.OrderItems,
	}

	claimed, err := p.store.Claim(ctx, item.ID)
	if err != nil {
		p.logger.Error("failed to claim outbox item", "error", err, "outbox_id", item.ID, "order_id", item.OrderID)
		evt = evt.Next(domain.EventPaymentCreationFailed)
		evt.Error = err.Error()
		p.publish(ctx, evt)
		return
	}
	if !claimed {
		p.logger.Info("outbox item already dispatched", "outbox_id", item.ID, "order_id", item.OrderID)
		return
	}

	paymentID, err := p.payments.CreatePayment(ctx, item.OrderID, item.UserID, item.TotalAmount)
	if err != nil {
		p.logger.Error("payment creation failed", "error", err, "order_id", item.OrderID)
		if markErr := p.store.MarkFailed(ctx, item.ID); markErr != nil {
			p.logger.Error("failed to mark outbox item failed", "error", markErr, "outbox_id", item.ID)
		}
		evt = evt.Next(domain.EventPaymentCreationFailed)
		evt.Error = err.Error()
		p.publish(ctx, evt)
		return
	}

	p.logger.Info("payment created", "order_id", item.OrderID, "payment_id", paymentID)
	evt = evt.Next(domain.EventPaymentCreated)
	evt.PaymentID = paymentID
	p.publish(ctx, evt)
}

func (p *Processor) publish(ctx context.Context, evt domain.Envelope) {
	if err := p.publisher.Publish(ctx, evt.OrderID, evt); err != nil {
		p.logger.Error("failed to publish payment outcome", "error", err, "event", evt.Event, "order_id", evt.OrderID)
	}
}
