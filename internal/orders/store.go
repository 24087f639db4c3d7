package orders

import "context"

// Store is the durable record of orders and their line items. Orders are
// insert-only apart from the single status field, and status writes are
// conditional on the expected previous status.
type Store interface {
	// CreateOrder persists the order and all items as one atomic unit and
	// assigns their identities.
	CreateOrder(ctx context.Context, o *Order) error

	// GetOrder loads an order with its items. ErrOrderNotFound if absent.
	GetOrder(ctx context.Context, id int64) (*Order, error)

	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]Order, error)
	ListOrdersByStatus(ctx context.Context, st Status) ([]Order, error)

	// TransitionStatus applies from->to only if the stored status still
	// equals from. A lost race or illegal transition yields
	// *InvalidTransitionError.
	TransitionStatus(ctx context.Context, id int64, from, to Status) error

	// CancelPending verifies PENDING, restocks every item and writes
	// CANCELLED as one durable unit, returning the cancelled order.
	// A second cancel fails *InvalidTransitionError without touching stock.
	CancelPending(ctx context.Context, id int64) (*Order, error)
}
