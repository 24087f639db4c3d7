package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gretalab/go-commerce-orders/internal/stock"
)

// Repo is the Postgres order store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO orders(customer_email, order_date, status, total_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		o.CustomerEmail, o.OrderDate, o.Status, o.TotalCents).Scan(&o.ID)
	if err != nil {
		return err
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, unit_price_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Quantity, it.UnitPriceCents).Scan(&it.ID)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) GetOrder(ctx context.Context, id int64) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_email, order_date, status, total_cents
		FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.CustomerEmail, &o.OrderDate, &o.Status, &o.TotalCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Items, err = r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repo) ListOrders(ctx context.Context) ([]Order, error) {
	return r.listWhere(ctx, ``)
}

func (r *Repo) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	return r.listWhere(ctx, `WHERE customer_email = $1`, email)
}

func (r *Repo) ListOrdersByStatus(ctx context.Context, st Status) ([]Order, error) {
	return r.listWhere(ctx, `WHERE status = $1`, st)
}

func (r *Repo) listWhere(ctx context.Context, where string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, customer_email, order_date, status, total_cents
		FROM orders `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerEmail, &o.OrderDate, &o.Status, &o.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		out[i].Items, err = r.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) loadItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, qty, unit_price_cents
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *Repo) TransitionStatus(ctx context.Context, id int64, from, to Status) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var current Status
	err = r.DB.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	return &InvalidTransitionError{OrderID: id, From: current, To: to}
}

// CancelPending locks the order row, verifies it is still PENDING, credits
// stock back for every item and flips the status, all in one transaction.
// The row lock makes concurrent cancel/fulfill attempts serialize; the
// loser sees a non-PENDING status and fails without a second restock.
func (r *Repo) CancelPending(ctx context.Context, id int64) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var o Order
	err = tx.QueryRow(ctx, `
		SELECT id, customer_email, order_date, status, total_cents
		FROM orders WHERE id = $1 FOR UPDATE`, id).
		Scan(&o.ID, &o.CustomerEmail, &o.OrderDate, &o.Status, &o.TotalCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, &InvalidTransitionError{OrderID: id, From: o.Status, To: StatusCancelled}
	}

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, product_id, qty, unit_price_cents
		FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents); err != nil {
			rows.Close()
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, it := range o.Items {
		if err := stock.RestockTx(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, StatusCancelled); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	o.Status = StatusCancelled
	return &o, nil
}
