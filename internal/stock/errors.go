package stock

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound     = errors.New("product not found")
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrAlreadyReleased means a reservation token was released twice.
	// Callers treat this as a logic bug, not a recoverable condition.
	ErrAlreadyReleased = errors.New("reservation already released")
)

type InsufficientStockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}
