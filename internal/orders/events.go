package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCancelled = "OrderCancelled"
	EventOrderFulfilled = "OrderFulfilled"
	EventStockRestocked = "StockRestocked"
	EventStockLow       = "StockLow"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id for order events
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope stamps identity and time; payload marshaling is the caller's.
func NewEnvelope(eventType, producer, traceID, correlationID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

type EventItem struct {
	ProductID      int64 `json:"product_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents"`
}

type OrderPlacedPayload struct {
	OrderID       int64       `json:"order_id"`
	CustomerEmail string      `json:"customer_email"`
	Items         []EventItem `json:"items"`
	TotalCents    int64       `json:"total_cents"`
}

type OrderCancelledPayload struct {
	OrderID   int64       `json:"order_id"`
	Restocked []EventItem `json:"restocked"`
}

type OrderFulfilledPayload struct {
	OrderID int64 `json:"order_id"`
}

type StockRestockedPayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type StockLowPayload struct {
	ProductID int64 `json:"product_id"`
	Stock     int   `json:"stock"`
	Threshold int   `json:"threshold"`
}

func EventItems(items []OrderItem) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, it := range items {
		out = append(out, EventItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return out
}
