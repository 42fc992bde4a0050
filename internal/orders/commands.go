package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

var (
	ErrEmptyOrder     = errors.New("an order must have one or more items")
	ErrUnknownProduct = errors.New("product not found")
)

// OrderStore is the slice of the repository the write commands need.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	SetPayment(ctx context.Context, id string, isPaid *bool, paymentLink *string) (bool, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// ProductCatalog resolves product ids to their current unit price in
// one batch lookup. Ids absent from the result do not exist.
type ProductCatalog interface {
	PricesFor(ctx context.Context, productIDs []string) (map[string]int64, error)
}

// Projection is the derived cache the write model keeps in sync,
// best-effort, with the system of record.
type Projection interface {
	Store(ctx context.Context, order *domain.Order) error
	Evict(ctx context.Context, orderID string) error
}

// Publisher publishes one envelope to the saga topic, keyed for
// per-order ordering.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ItemRequest is an order line as submitted by the client; the unit
// price is resolved server-side at creation time.
type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Commands is the orders write model. Every Create invocation emits
// exactly one terminal event, OrderCreated or OrderCreationFailed,
// which is what lets downstream services trust the bus instead of
// polling the orders table.
type Commands struct {
	store          OrderStore
	catalog        ProductCatalog
	cache          Projection
	publisher      Publisher
	gatewayBaseURL string
	logger         *slog.Logger
}

func NewCommands(store OrderStore, catalog ProductCatalog, cache Projection, publisher Publisher, gatewayBaseURL string, logger *slog.Logger) *Commands {
	return &Commands{
		store:          store,
		catalog:        catalog,
		cache:          cache,
		publisher:      publisher,
		gatewayBaseURL: gatewayBaseURL,
		logger:         logger,
	}
}

// Create validates and persists a new order, writes the cache
// projection and publishes the terminal event. Validation failures
// happen before any write; storage failures roll back inside the
// repository. The deferred publish runs on every path, including a
// panic unwinding through here, so the saga can never silently lose
// an order creation.
func (c *Commands) Create(ctx context.Context, userID string, items []ItemRequest) (order *domain.Order, err error) {
	evt := domain.NewEnvelope(domain.EventOrderCreationFailed)
	evt.UserID = userID

	defer func() {
		if err != nil {
			evt.Error = err.Error()
		}
		if pubErr := c.publisher.Publish(ctx, evt.OrderID, evt); pubErr != nil {
			c.logger.Error("failed to publish order terminal event", "error", pubErr, "event", evt.Event)
		}
	}()

	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	productIDs := make([]string, len(items))
	for i, item := range items {
		productIDs[i] = item.ProductID
	}

	prices, err := c.catalog.PricesFor(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve product prices: %w", err)
	}

	var total int64
	orderItems := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		price, ok := prices[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, item.ProductID)
		}
		total += price * int64(item.Quantity)
		orderItems = append(orderItems, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		})
	}

	order = &domain.Order{
		UserID:      userID,
		Items:       orderItems,
		TotalAmount: total,
		PaymentLink: domain.NoPaymentLink,
	}

	if err := c.store.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	// The order is committed. A failed projection write must not undo
	// it, so cache errors are only logged.
	if cacheErr := c.cache.Store(ctx, order); cacheErr != nil {
		c.logger.Error("failed to write order projection", "error", cacheErr, "order_id", order.ID)
	}

	evt = evt.Next(domain.EventOrderCreated)
	evt.OrderID = order.ID
	evt.TotalAmount = order.TotalAmount
	evt.OrderItems = domain.EventItems(order.Items)

	c.logger.Info("order created", "order_id", order.ID, "user_id", userID, "total_amount", total)
	return order, nil
}

// PaymentLink builds the externally addressable link for a payment.
func (c *Commands) PaymentLink(paymentID string) string {
	return fmt.Sprintf("%s/payments/process/%s", c.gatewayBaseURL, paymentID)
}

// SetPaymentDetails is the idempotent partial update used by the
// payment-confirmation step. Nil arguments leave the corresponding
// field unchanged. It reports success, it does not fail the caller.
func (c *Commands) SetPaymentDetails(ctx context.Context, orderID string, isPaid *bool, paymentID *string) bool {
	var paymentLink *string
	if paymentID != nil {
		link := c.PaymentLink(*paymentID)
		paymentLink = &link
	}

	updated, err := c.store.SetPayment(ctx, orderID, isPaid, paymentLink)
	if err != nil {
		c.logger.Error("failed to update order payment details", "error", err, "order_id", orderID)
		return false
	}
	if !updated {
		c.logger.Warn("payment update for unknown order", "order_id", orderID)
	}
	return updated
}

// Delete removes the order, its items and its cache entry. The count
// is zero when the order did not exist; that is not an error.
func (c *Commands) Delete(ctx context.Context, orderID string) (int64, error) {
	deleted, err := c.store.Delete(ctx, orderID)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if cacheErr := c.cache.Evict(ctx, orderID); cacheErr != nil {
			c.logger.Error("failed to evict order projection", "error", cacheErr, "order_id", orderID)
		}
		c.logger.Info("order deleted", "order_id", orderID)
	}

	return deleted, nil
}
