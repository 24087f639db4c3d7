package orders

import (
	"context"
	"sync"
)

// Restocker is the slice of the stock ledger the store needs to reconcile
// stock on cancellation.
type Restocker interface {
	Restock(ctx context.Context, productID int64, qty int) error
}

// MemoryStore implements Store over in-process maps with the same
// atomicity contract as the Postgres store. Tests and embedded setups use
// it together with stock.MemoryLedger.
type MemoryStore struct {
	mu        sync.Mutex
	ledger    Restocker
	nextOrder int64
	nextItem  int64
	orders    map[int64]*Order
	insertSeq []int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(ledger Restocker) *MemoryStore {
	return &MemoryStore{
		ledger: ledger,
		orders: make(map[int64]*Order),
	}
}

func (s *MemoryStore) CreateOrder(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrder++
	o.ID = s.nextOrder
	for i := range o.Items {
		s.nextItem++
		o.Items[i].ID = s.nextItem
		o.Items[i].OrderID = o.ID
	}

	cp := cloneOrder(o)
	s.orders[o.ID] = &cp
	s.insertSeq = append(s.insertSeq, o.ID)
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := cloneOrder(o)
	return &cp, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context) ([]Order, error) {
	return s.list(func(*Order) bool { return true })
}

func (s *MemoryStore) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	return s.list(func(o *Order) bool { return o.CustomerEmail == email })
}

func (s *MemoryStore) ListOrdersByStatus(ctx context.Context, st Status) ([]Order, error) {
	return s.list(func(o *Order) bool { return o.Status == st })
}

func (s *MemoryStore) list(keep func(*Order) bool) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, id := range s.insertSeq {
		if o := s.orders[id]; keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (s *MemoryStore) TransitionStatus(ctx context.Context, id int64, from, to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if o.Status != from {
		return &InvalidTransitionError{OrderID: id, From: o.Status, To: to}
	}
	o.Status = to
	return nil
}

func (s *MemoryStore) CancelPending(ctx context.Context, id int64) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{OrderID: id, From: o.Status, To: StatusCancelled}
	}

	for _, it := range o.Items {
		if err := s.ledger.Restock(ctx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}
	o.Status = StatusCancelled

	cp := cloneOrder(o)
	return &cp, nil
}

func cloneOrder(o *Order) Order {
	cp := *o
	cp.Items = make([]OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	return cp
}
