package domain

import "time"

// NoPaymentLink is the placeholder stored on an order before the
// payments service has issued a link for it.
const NoPaymentLink = "no-link"

type OrderItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Items       []OrderItem `json:"items"`
	TotalAmount int64       `json:"total_amount"`
	IsPaid      bool        `json:"is_paid"`
	PaymentLink string      `json:"payment_link"`
	CreatedAt   time.Time   `json:"created_at"`
}
