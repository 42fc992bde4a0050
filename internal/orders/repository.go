package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

// OrderRepository is the system of record for the Order aggregate.
// An order and its items form one unit of transactional isolation:
// every multi-row write goes through a single transaction.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order and all of its items in one transaction.
// The generated id is set on the order before the items are written so
// callers observe it even though commit happens last.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	order.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, is_paid, payment_link, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, order.ID, order.UserID, order.TotalAmount, order.IsPaid, order.PaymentLink, order.CreatedAt)
	if err != nil {
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, is_paid, payment_link, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.IsPaid, &order.PaymentLink, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

// SetPayment applies a partial update: nil fields are left untouched.
// Returns false when the order does not exist.
func (r *OrderRepository) SetPayment(ctx context.Context, id string, isPaid *bool, paymentLink *string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET is_paid = COALESCE($2, is_paid),
		    payment_link = COALESCE($3, payment_link),
		    updated_at = NOW()
		WHERE id = $1
	`, id, isPaid, paymentLink)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// Delete removes the order and its items in one transaction and
// reports how many orders were removed. Deleting an absent order is
// not an error: the count is simply zero.
func (r *OrderRepository) Delete(ctx context.Context, id string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, id); err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return deleted, tx.Commit()
}
