// Package stockwatch consumes order placement events and raises low-stock
// alerts. It is downstream observation only; it never mutates stock.
package stockwatch

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
	"github.com/gretalab/go-commerce-orders/internal/stock"
)

// StockReader is the read-only stock lookup; *catalog.Repo satisfies it.
type StockReader interface {
	StockOf(ctx context.Context, productID int64) (int, error)
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Cache covers event dedup and the order-status read cache the worker
// refreshes; *redisx.Cache satisfies it.
type Cache interface {
	SeenEvent(ctx context.Context, service, eventID string) bool
	MarkEvent(ctx context.Context, service, eventID string)
	SetStatus(ctx context.Context, orderID int64, body []byte)
}

type Service struct {
	Stock       StockReader
	Cache       Cache
	Producer    Publisher
	ServiceName string
	Threshold   int
	Log         *zap.Logger
}

// HandleOrderPlaced is wired as the consumer handler.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	}

	if s.Cache.SeenEvent(ctx, s.ServiceName, env.EventID) {
		return nil
	}
	s.Cache.MarkEvent(ctx, s.ServiceName, env.EventID)

	p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
	if err != nil {
		return err
	}

	s.Cache.SetStatus(ctx, p.OrderID, kafkax.MustMarshal(map[string]any{"status": orders.StatusPending}))

	for _, it := range p.Items {
		n, err := s.Stock.StockOf(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, stock.ErrProductNotFound) {
				// product deleted after placement; nothing to watch
				continue
			}
			return err
		}
		if n < s.Threshold {
			s.publishLow(env.TraceID, it.ProductID, n)
		}
	}
	return nil
}

func (s *Service) publishLow(trace string, productID int64, n int) {
	key := strconv.FormatInt(productID, 10)
	ev := orders.NewEnvelope(orders.EventStockLow, s.ServiceName, trace, key,
		kafkax.MustMarshal(orders.StockLowPayload{ProductID: productID, Stock: n, Threshold: s.Threshold}))
	s.Producer.Publish(orders.TopicStockLow, []byte(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	s.Log.Warn("stock low",
		zap.Int64("product_id", productID),
		zap.Int("stock", n),
		zap.Int("threshold", s.Threshold))
}
