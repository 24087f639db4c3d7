// Package stock is the sole authority over product stock counts. Every
// mutation goes through Reserve, Release or Restock; order logic never
// writes the stock column directly.
package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reservation is a token for a provisional stock decrement. It can be
// released (reversed) until the owning order is durably persisted.
type Reservation struct {
	ID        string `json:"id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Ledger is the Postgres implementation. The decrement is a single
// conditional UPDATE so there is no check-then-act window between reading
// the stock level and writing it.
type Ledger struct{ DB *pgxpool.Pool }

func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, fmt.Errorf("reserve: quantity must be positive, got %d", qty)
	}

	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Reservation{}, err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return Reservation{}, err
	}
	if ct.RowsAffected() == 0 {
		var avail int
		err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&avail)
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrProductNotFound
		}
		if err != nil {
			return Reservation{}, err
		}
		return Reservation{}, &InsufficientStockError{ProductID: productID, Requested: qty, Available: avail}
	}

	res := Reservation{ID: uuid.NewString(), ProductID: productID, Quantity: qty}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(id, product_id, qty, status)
		VALUES ($1, $2, $3, 'RESERVED')`, res.ID, res.ProductID, res.Quantity); err != nil {
		return Reservation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Reservation{}, err
	}
	return res, nil
}

// Release reverses a reservation. The RESERVED->RELEASED flip is
// conditional on the current status, so a second release of the same token
// fails ErrAlreadyReleased instead of crediting stock twice.
func (l *Ledger) Release(ctx context.Context, res Reservation) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'RELEASED', released_at = now()
		WHERE id = $1 AND status = 'RESERVED'`, res.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var status string
		err := tx.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1`, res.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrReservationNotFound
		}
		if err != nil {
			return err
		}
		return ErrAlreadyReleased
	}

	if err := restock(ctx, tx, res.ProductID, res.Quantity); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Restock is the unconditional administrative increment. It is independent
// of reservations.
func (l *Ledger) Restock(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restock: quantity must be positive, got %d", qty)
	}
	return restock(ctx, l.DB, productID, qty)
}

// RestockTx credits stock inside a caller-owned transaction. The order
// cancellation path uses it so the restock and the status write commit as
// one durable unit.
func RestockTx(ctx context.Context, tx pgx.Tx, productID int64, qty int) error {
	return restock(ctx, tx, productID, qty)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func restock(ctx context.Context, db execer, productID int64, qty int) error {
	ct, err := db.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}
