package stockwatch

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
	"github.com/gretalab/go-commerce-orders/internal/stock"
)

type memCache struct {
	seen     map[string]bool
	statuses map[int64][]byte
}

func newMemCache() *memCache {
	return &memCache{seen: make(map[string]bool), statuses: make(map[int64][]byte)}
}

func (c *memCache) SeenEvent(ctx context.Context, service, eventID string) bool {
	return c.seen[service+":"+eventID]
}

func (c *memCache) MarkEvent(ctx context.Context, service, eventID string) {
	c.seen[service+":"+eventID] = true
}

func (c *memCache) SetStatus(ctx context.Context, orderID int64, body []byte) {
	c.statuses[orderID] = body
}

type capturePublisher struct {
	topics []string
	values [][]byte
}

func (p *capturePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
}

func newService(ledger *stock.MemoryLedger) (*Service, *memCache, *capturePublisher) {
	cache := newMemCache()
	pub := &capturePublisher{}
	svc := &Service{
		Stock:       ledger,
		Cache:       cache,
		Producer:    pub,
		ServiceName: "stockwatch-test",
		Threshold:   5,
		Log:         zap.NewNop(),
	}
	return svc, cache, pub
}

func placedMessage(t *testing.T, items []orders.EventItem) kafkago.Message {
	t.Helper()
	ev := orders.NewEnvelope(orders.EventOrderPlaced, "api-test", "trace-1", "42",
		kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID:       42,
			CustomerEmail: "alice@example.com",
			Items:         items,
			TotalCents:    1000,
		}))
	return kafkago.Message{Value: kafkax.MustMarshal(ev)}
}

func TestHandleOrderPlaced_PublishesLowStockAlert(t *testing.T) {
	ledger := stock.NewMemoryLedger()
	ledger.AddProduct(1, 500, 3)  // below threshold 5
	ledger.AddProduct(2, 500, 20) // plenty
	svc, cache, pub := newService(ledger)

	msg := placedMessage(t, []orders.EventItem{
		{ProductID: 1, Quantity: 1, UnitPriceCents: 500},
		{ProductID: 2, Quantity: 1, UnitPriceCents: 500},
	})
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), msg))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, orders.TopicStockLow, pub.topics[0])

	var ev orders.Envelope
	require.NoError(t, json.Unmarshal(pub.values[0], &ev))
	assert.Equal(t, orders.EventStockLow, ev.EventType)
	var payload orders.StockLowPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, int64(1), payload.ProductID)
	assert.Equal(t, 3, payload.Stock)
	assert.Equal(t, 5, payload.Threshold)

	// status cache refreshed for the placed order
	assert.Contains(t, string(cache.statuses[42]), "PENDING")
}

func TestHandleOrderPlaced_DuplicateEventProcessedOnce(t *testing.T) {
	ledger := stock.NewMemoryLedger()
	ledger.AddProduct(1, 500, 3)
	svc, _, pub := newService(ledger)

	msg := placedMessage(t, []orders.EventItem{{ProductID: 1, Quantity: 1, UnitPriceCents: 500}})
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), msg))
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), msg))

	assert.Len(t, pub.topics, 1)
}

func TestHandleOrderPlaced_IgnoresOtherEventTypes(t *testing.T) {
	ledger := stock.NewMemoryLedger()
	ledger.AddProduct(1, 500, 3)
	svc, cache, pub := newService(ledger)

	ev := orders.NewEnvelope(orders.EventOrderCancelled, "api-test", "", "42",
		kafkax.MustMarshal(orders.OrderCancelledPayload{OrderID: 42}))
	msg := kafkago.Message{Value: kafkax.MustMarshal(ev)}

	require.NoError(t, svc.HandleOrderPlaced(context.Background(), msg))
	assert.Empty(t, pub.topics)
	assert.Empty(t, cache.seen)
}

func TestHandleOrderPlaced_SkipsDeletedProducts(t *testing.T) {
	ledger := stock.NewMemoryLedger()
	svc, _, pub := newService(ledger)

	msg := placedMessage(t, []orders.EventItem{{ProductID: 99, Quantity: 1, UnitPriceCents: 500}})
	require.NoError(t, svc.HandleOrderPlaced(context.Background(), msg))
	assert.Empty(t, pub.topics)
}

func TestHandleOrderPlaced_MalformedEnvelope(t *testing.T) {
	svc, _, _ := newService(stock.NewMemoryLedger())

	err := svc.HandleOrderPlaced(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}
