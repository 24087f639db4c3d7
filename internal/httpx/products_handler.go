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

	"github.com/gretalab/go-commerce-orders/internal/catalog"
	kafkax "github.com/gretalab/go-commerce-orders/internal/kafka"
	"github.com/gretalab/go-commerce-orders/internal/orders"
)

// CatalogStore is the product CRUD surface; *catalog.Repo satisfies it.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	CreateProduct(ctx context.Context, p *catalog.Product) error
	UpdateProduct(ctx context.Context, p *catalog.Product) error
	DeleteProduct(ctx context.Context, id int64) error
}

// Restocker is the administrative increment of the stock ledger.
type Restocker interface {
	Restock(ctx context.Context, productID int64, qty int) error
}

type ProductsHandler struct {
	Catalog  CatalogStore
	Ledger   Restocker
	Producer Publisher
	Service  string
	Timeout  time.Duration
	Log      *zap.Logger
}

type ProductReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

type RestockReq struct {
	Quantity int `json:"quantity"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Post("/products", h.createProduct)
	r.Put("/products/{id}", h.updateProduct)
	r.Delete("/products/{id}", h.deleteProduct)
	r.Post("/products/{id}/restock", h.restock)
}

func (h *ProductsHandler) timeout() time.Duration {
	if h.Timeout > 0 {
		return h.Timeout
	}
	return 3 * time.Second
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	p := &catalog.Product{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	}
	if err := h.Catalog.CreateProduct(ctx, p); err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Location", "/products/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductsHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	req, ok := decodeProduct(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	p := &catalog.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
	}
	if err := h.Catalog.UpdateProduct(ctx, p); err != nil {
		writeErr(w, err)
		return
	}

	// re-read so the response carries the stock count, which the update
	// deliberately does not touch
	out, err := h.Catalog.GetProduct(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	if err := h.Catalog.DeleteProduct(ctx, id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RestockReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "quantity must be positive"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout())
	defer cancel()

	if err := h.Ledger.Restock(ctx, id, req.Quantity); err != nil {
		writeErr(w, err)
		return
	}

	ev := orders.NewEnvelope(orders.EventStockRestocked, h.Service, r.Header.Get("X-Request-Id"),
		strconv.FormatInt(id, 10),
		kafkax.MustMarshal(orders.StockRestockedPayload{ProductID: id, Quantity: req.Quantity}))
	h.Producer.Publish(orders.TopicStockRestocked, []byte(strconv.FormatInt(id, 10)), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockRestocked)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "restocked": req.Quantity})
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (ProductReq, bool) {
	var req ProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return req, false
	}
	if req.Name == "" || req.PriceCents <= 0 || req.Stock < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name required, price must be positive, stock must be >= 0"})
		return req, false
	}
	return req, true
}
