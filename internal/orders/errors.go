package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOrder covers malformed placement requests: empty items,
	// non-positive quantities, bad email. Wrapped with the concrete reason.
	ErrInvalidOrder = errors.New("invalid order")

	ErrOrderNotFound = errors.New("order not found")
)

// InvalidTransitionError reports a lifecycle transition attempted from a
// state the transition table forbids.
type InvalidTransitionError struct {
	OrderID int64
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// PersistenceError marks a storage failure after all reservations were
// taken and then released again. No partial state remains, so the caller
// may retry.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("order persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
