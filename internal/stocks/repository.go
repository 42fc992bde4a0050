package stocks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

var ErrInsufficientStock = errors.New("insufficient stock")

// StockRepository owns the product catalog and its stock counters.
// Check-out and check-in are the saga's forward and compensating stock
// operations; each runs as a single transaction so a partial
// multi-line decrement can never be observed.
type StockRepository struct {
	db *sql.DB
}

func NewStockRepository(db *sql.DB) *StockRepository {
	return &StockRepository{db: db}
}

// PricesFor resolves unit prices for all given product ids in one
// query. Ids missing from the returned map do not exist.
func (r *StockRepository) PricesFor(ctx context.Context, productIDs []string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, unit_price
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(productIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	prices := make(map[string]int64)
	for rows.Next() {
		var id string
		var price int64
		if err := rows.Scan(&id, &price); err != nil {
			return nil, err
		}
		prices[id] = price
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return prices, nil
}

// CheckOut decrements stock for every order line, all or nothing. The
// conditional update refuses to take a counter negative; a line that
// matches no row means the product is unknown or understocked and the
// whole check-out rolls back.
func (r *StockRepository) CheckOut(ctx context.Context, items []domain.EventItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity - $2
			WHERE id = $1 AND quantity >= $2
		`, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, item.ProductID)
		}
	}

	return tx.Commit()
}

// CheckIn restores previously checked-out stock, all or nothing. A
// line for an unknown product fails the check-in so operators notice
// an inventory that can no longer be reconciled.
func (r *StockRepository) CheckIn(ctx context.Context, items []domain.EventItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET quantity = quantity + $2
			WHERE id = $1
		`, item.ProductID, item.Quantity)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rowsAffected == 0 {
			return fmt.Errorf("unknown product %s", item.ProductID)
		}
	}

	return tx.Commit()
}

func (r *StockRepository) ListAll(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, unit_price, quantity
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Quantity); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (r *StockRepository) Get(ctx context.Context, productID string) (*domain.Product, error) {
	p := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, unit_price, quantity
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.Quantity)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return p, nil
}
