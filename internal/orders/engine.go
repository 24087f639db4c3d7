package orders

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/gretalab/go-commerce-orders/internal/stock"
)

const (
	releaseTimeout  = 10 * time.Second
	releaseAttempts = 3
	releaseBackoff  = 100 * time.Millisecond
)

// StockLedger is the slice of the stock ledger the engine needs: acquire a
// provisional decrement per line item, or hand one back.
type StockLedger interface {
	Reserve(ctx context.Context, productID int64, qty int) (stock.Reservation, error)
	Release(ctx context.Context, res stock.Reservation) error
}

// Catalog is the read-only price lookup used for snapshotting. It is never
// the basis of a stock decision; that is the ledger's job.
type Catalog interface {
	PriceOf(ctx context.Context, productID int64) (int64, error)
}

// Engine turns a proposed order into a durably persisted, stock-consistent
// one. Reservations are acquired per item in ascending product-id order and
// unwound in reverse on any failure, so a failed placement leaves every
// stock count where it started.
type Engine struct {
	Ledger  StockLedger
	Catalog Catalog
	Store   Store
	Log     *zap.Logger
}

func (e *Engine) PlaceOrder(ctx context.Context, email string, items []ItemRequest) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: bad email %q", ErrInvalidOrder, email)
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: non-positive quantity %d for product %d",
				ErrInvalidOrder, it.Quantity, it.ProductID)
		}
	}

	merged := normalize(items)

	acquired := make([]stock.Reservation, 0, len(merged))
	for _, it := range merged {
		res, err := e.Ledger.Reserve(ctx, it.ProductID, it.Quantity)
		if err != nil {
			e.releaseAll(ctx, acquired)
			return nil, err
		}
		acquired = append(acquired, res)
	}

	order := &Order{
		CustomerEmail: email,
		OrderDate:     time.Now().UTC(),
		Status:        StatusPending,
		Items:         make([]OrderItem, 0, len(merged)),
	}
	for _, it := range merged {
		price, err := e.Catalog.PriceOf(ctx, it.ProductID)
		if err != nil {
			e.releaseAll(ctx, acquired)
			return nil, err
		}
		order.Items = append(order.Items, OrderItem{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: price,
		})
		order.TotalCents += price * int64(it.Quantity)
	}

	if err := e.Store.CreateOrder(ctx, order); err != nil {
		e.releaseAll(ctx, acquired)
		return nil, &PersistenceError{Err: err}
	}
	return order, nil
}

// releaseAll unwinds reservations in reverse acquisition order. It runs on
// a context detached from the caller's: a request that expires mid-placement
// must still get every reservation back, or stock stays decremented for an
// order that never existed. A release that reports ErrAlreadyReleased is a
// bookkeeping bug; it is logged loudly and the remaining reservations are
// still unwound.
func (e *Engine) releaseAll(ctx context.Context, acquired []stock.Reservation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for i := len(acquired) - 1; i >= 0; i-- {
		if err := e.release(ctx, acquired[i]); err != nil {
			e.Log.Error("release reservation",
				zap.String("reservation_id", acquired[i].ID),
				zap.Int64("product_id", acquired[i].ProductID),
				zap.Error(err))
		}
	}
}

// release retries transient failures; ErrAlreadyReleased and
// ErrReservationNotFound are definitive and never retried.
func (e *Engine) release(ctx context.Context, res stock.Reservation) error {
	var err error
	for attempt := 0; attempt < releaseAttempts; attempt++ {
		err = e.Ledger.Release(ctx, res)
		if err == nil ||
			errors.Is(err, stock.ErrAlreadyReleased) ||
			errors.Is(err, stock.ErrReservationNotFound) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * releaseBackoff):
		}
	}
	return err
}

// normalize merges duplicate product ids and sorts ascending, giving every
// caller the same lock ordering on overlapping product sets.
func normalize(items []ItemRequest) []ItemRequest {
	byProduct := make(map[int64]int, len(items))
	for _, it := range items {
		byProduct[it.ProductID] += it.Quantity
	}
	out := make([]ItemRequest, 0, len(byProduct))
	for id, qty := range byProduct {
		out = append(out, ItemRequest{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
