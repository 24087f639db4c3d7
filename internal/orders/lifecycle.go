package orders

import (
	"context"

	"go.uber.org/zap"
)

// Lifecycle applies the validated state transitions. Both transitions are
// terminal; anything attempted from a non-PENDING state fails
// *InvalidTransitionError.
type Lifecycle struct {
	Store Store
	Log   *zap.Logger
}

// Cancel moves PENDING -> CANCELLED and restores stock for every item. The
// store performs restock and status write as one durable unit, so a retry
// of a completed cancel fails the transition check without a double credit.
func (l *Lifecycle) Cancel(ctx context.Context, orderID int64) (*Order, error) {
	o, err := l.Store.CancelPending(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.Log.Info("order cancelled",
		zap.Int64("order_id", o.ID),
		zap.Int("items_restocked", len(o.Items)))
	return o, nil
}

// Fulfill moves PENDING -> FULFILLED via a conditional update keyed on the
// expected previous status, so two concurrent transition attempts cannot
// race past each other.
func (l *Lifecycle) Fulfill(ctx context.Context, orderID int64) (*Order, error) {
	if err := l.Store.TransitionStatus(ctx, orderID, StatusPending, StatusFulfilled); err != nil {
		return nil, err
	}
	o, err := l.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	l.Log.Info("order fulfilled", zap.Int64("order_id", o.ID))
	return o, nil
}
