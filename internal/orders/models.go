package orders

import "time"

type Order struct {
	ID            int64       `json:"id"`
	CustomerEmail string      `json:"customer_email"`
	OrderDate     time.Time   `json:"order_date"`
	Status        Status      `json:"status"`
	Items         []OrderItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
}

type OrderItem struct {
	ID             int64 `json:"id"`
	OrderID        int64 `json:"order_id"`
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

// ItemRequest is one requested line of a proposed order, before prices are
// snapshotted and identities assigned.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
