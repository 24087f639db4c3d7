package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
)

// Publisher is the async event sink; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// StatusCache is the redis-backed fast path for status reads and the
// placement idempotency key; *redisx.Cache satisfies it.
type StatusCache interface {
	GetStatus(ctx context.Context, orderID int64) ([]byte, bool)
	SetStatus(ctx context.Context, orderID int64, body []byte)
	GetIdempotent(ctx context.Context, key string) (int64, bool)
	SetIdempotent(ctx context.Context, key string, orderID int64)
}

type OrdersHandler struct {
	Engine    *orders.Engine
	Lifecycle *orders.Lifecycle
	Store     orders.Store
	Cache     StatusCache
	Producer  Publisher
	Service   string
	Timeout   time.Duration
	Log       *zap.Logger
}

type PlaceOrderReq struct {
	CustomerEmail string               `json:"customer_email"`
	Items         []orders.ItemRequest `json:"items"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Get("/orders/email/{email}", h.listByEmail)
	r.Get("/orders/status/{status}", h.listByStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Post("/orders/{id}/fulfill", h.fulfillOrder)
}

func (h *OrdersHandler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 5 * time.Second
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	// Idempotency fast path: a replayed key returns the already-placed
	// order instead of reserving stock again.
	idemKey := r.Header.Get("X-Idempotency-Key")
	if idemKey != "" {
		if orderID, ok := h.Cache.GetIdempotent(ctx, idemKey); ok {
			if o, err := h.Store.GetOrder(ctx, orderID); err == nil {
				writeJSON(w, http.StatusOK, o)
				return
			}
		}
	}

	o, err := h.Engine.PlaceOrder(ctx, req.CustomerEmail, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	if idemKey != "" {
		h.Cache.SetIdempotent(ctx, idemKey, o.ID)
	}
	h.cacheStatus(ctx, o.ID, o.Status)

	h.publish(orders.EventOrderPlaced, orders.TopicOrderPlaced, o.ID, r.Header.Get("X-Request-Id"),
		orders.OrderPlacedPayload{
			OrderID:       o.ID,
			CustomerEmail: o.CustomerEmail,
			Items:         orders.EventItems(o.Items),
			TotalCents:    o.TotalCents,
		})

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	if body, ok := h.Cache.GetStatus(ctx, id); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		return
	}

	o, err := h.Store.GetOrder(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	out, err := h.Store.ListOrders(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listByEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	out, err := h.Store.ListOrdersByEmail(ctx, chi.URLParam(r, "email"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listByStatus(w http.ResponseWriter, r *http.Request) {
	st := orders.Status(chi.URLParam(r, "status"))
	if !orders.ValidStatus(st) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	out, err := h.Store.ListOrdersByStatus(ctx, st)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	o, err := h.Lifecycle.Cancel(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	h.publish(orders.EventOrderCancelled, orders.TopicOrderCancelled, o.ID, r.Header.Get("X-Request-Id"),
		orders.OrderCancelledPayload{OrderID: o.ID, Restocked: orders.EventItems(o.Items)})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) fulfillOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	o, err := h.Lifecycle.Fulfill(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	h.publish(orders.EventOrderFulfilled, orders.TopicOrderFulfilled, o.ID, r.Header.Get("X-Request-Id"),
		orders.OrderFulfilledPayload{OrderID: o.ID})
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID int64, st orders.Status) {
	h.Cache.SetStatus(ctx, orderID, kafkax.MustMarshal(map[string]any{"status": st}))
}

func (h *OrdersHandler) publish(eventType, topic string, orderID int64, traceID string, payload any) {
	ev := orders.NewEnvelope(eventType, h.Service, traceID, strconv.FormatInt(orderID, 10),
		kafkax.MustMarshal(payload))
	h.Producer.Publish(topic, orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return 0, false
	}
	return id, true
}
