package domain

import "time"

// EventType discriminates saga envelopes. The vocabulary is closed:
// each event has a fixed set of successor events and the saga always
// terminates in OrderCancelled, OrderCreationFailed or a paid order.
type EventType string

const (
	EventOrderCreated          EventType = "OrderCreated"
	EventOrderCreationFailed   EventType = "OrderCreationFailed"
	EventStockDecreased        EventType = "StockDecreased"
	EventStockDecreaseFailed   EventType = "StockDecreaseFailed"
	EventStockIncreased        EventType = "StockIncreased"
	EventPaymentCreated        EventType = "PaymentCreated"
	EventPaymentCreationFailed EventType = "PaymentCreationFailed"
	EventOrderCancelled        EventType = "OrderCancelled"
)

// EventItem is the wire form of an order line; unit prices stay
// private to the orders write model.
type EventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Envelope is one saga message. Envelopes are immutable once
// published: handlers derive the next envelope with Next and publish
// that, they never mutate and republish the one they received.
type Envelope struct {
	Event                  EventType   `json:"event"`
	OrderID                string      `json:"order_id,omitempty"`
	UserID                 string      `json:"user_id,omitempty"`
	TotalAmount            int64       `json:"total_amount,omitempty"`
	OrderItems             []EventItem `json:"order_items,omitempty"`
	PaymentID              string      `json:"payment_id,omitempty"`
	Error                  string      `json:"error,omitempty"`
	CancellationReason     string      `json:"cancellation_reason,omitempty"`
	StockCompensationError string      `json:"stock_compensation_error,omitempty"`
	Datetime               time.Time   `json:"datetime"`
}

// NewEnvelope starts a saga message of the given type with a fresh
// timestamp.
func NewEnvelope(event EventType) Envelope {
	return Envelope{Event: event, Datetime: time.Now().UTC()}
}

// Next derives the successor envelope: same order identity and items,
// new event type, fresh timestamp. The receiver is copied by value so
// the published original is never touched.
func (e Envelope) Next(event EventType) Envelope {
	e.Event = event
	e.Datetime = time.Now().UTC()
	return e
}

// EventItems converts order lines to their wire form.
func EventItems(items []OrderItem) []EventItem {
	out := make([]EventItem, len(items))
	for i, it := range items {
		out[i] = EventItem{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}
