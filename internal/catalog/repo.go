// Package catalog holds the product read/write surface that sits outside
// stock mutation: CRUD on the descriptive fields and the read-only price
// and existence lookups the placement engine snapshots from. Stock counts
// are never written here; that is the stock ledger's job.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gretalab/go-commerce-orders/internal/stock"
)

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, name, description, price_cents, stock, created_at, updated_at
		FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, description, price_cents, stock, created_at, updated_at
		FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, stock.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products(name, description, price_cents, stock)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		p.Name, p.Description, p.PriceCents, p.Stock).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct writes the descriptive fields only. Stock mutation goes
// through the ledger.
func (r *Repo) UpdateProduct(ctx context.Context, p *Product) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name = $2, description = $3, price_cents = $4, updated_at = now()
		WHERE id = $1`, p.ID, p.Name, p.Description, p.PriceCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

func (r *Repo) DeleteProduct(ctx context.Context, id int64) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return stock.ErrProductNotFound
	}
	return nil
}

func (r *Repo) PriceOf(ctx context.Context, id int64) (int64, error) {
	var price int64
	err := r.DB.QueryRow(ctx, `SELECT price_cents FROM products WHERE id = $1`, id).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, stock.ErrProductNotFound
	}
	return price, err
}

func (r *Repo) StockOf(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id = $1`, id).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, stock.ErrProductNotFound
	}
	return n, err
}
