package stock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type memProduct struct {
	priceCents int64
	stock      int
}

type memReservation struct {
	res      Reservation
	released bool
}

// MemoryLedger implements the ledger semantics over an in-process map.
// The mutex gives the same atomicity the conditional UPDATE gives the
// Postgres ledger. It backs tests and embedded setups, and doubles as a
// catalog read model (PriceOf/StockOf).
type MemoryLedger struct {
	mu           sync.Mutex
	products     map[int64]*memProduct
	reservations map[string]*memReservation
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products:     make(map[int64]*memProduct),
		reservations: make(map[string]*memReservation),
	}
}

func (m *MemoryLedger) AddProduct(id int64, priceCents int64, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[id] = &memProduct{priceCents: priceCents, stock: stock}
}

func (m *MemoryLedger) SetPrice(id int64, priceCents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.products[id]; ok {
		p.priceCents = priceCents
	}
}

func (m *MemoryLedger) Reserve(ctx context.Context, productID int64, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, fmt.Errorf("reserve: quantity must be positive, got %d", qty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return Reservation{}, ErrProductNotFound
	}
	if p.stock < qty {
		return Reservation{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: p.stock}
	}
	p.stock -= qty

	res := Reservation{ID: uuid.NewString(), ProductID: productID, Quantity: qty}
	m.reservations[res.ID] = &memReservation{res: res}
	return res, nil
}

func (m *MemoryLedger) Release(ctx context.Context, res Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reservations[res.ID]
	if !ok {
		return ErrReservationNotFound
	}
	if r.released {
		return ErrAlreadyReleased
	}
	r.released = true

	p, ok := m.products[r.res.ProductID]
	if !ok {
		return ErrProductNotFound
	}
	p.stock += r.res.Quantity
	return nil
}

func (m *MemoryLedger) Restock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restock: quantity must be positive, got %d", qty)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	p.stock += qty
	return nil
}

func (m *MemoryLedger) StockOf(ctx context.Context, productID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.stock, nil
}

func (m *MemoryLedger) PriceOf(ctx context.Context, productID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	return p.priceCents, nil
}
