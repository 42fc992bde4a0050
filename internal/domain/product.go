package domain

// Product is a catalog entry. UnitPrice is the price snapshotted onto
// order items at creation time; Quantity is the stock counter the saga
// checks out of and back into.
type Product struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}
