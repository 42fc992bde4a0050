package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/monicaDelao/log430-labo8/internal/domain"
)

const (
	StatusPending    = "pending"
	StatusDispatched = "dispatched"
	StatusFailed     = "failed"
)

// Item is a staged payment intent: "payment should be initiated for
// this order". A row exists if and only if its staging transaction
// committed, which is the whole point of the pattern.
type Item struct {
	ID          string
	OrderID     string
	UserID      string
	TotalAmount int64
	OrderItems  []domain.EventItem
	Status      string
	CreatedAt   time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Stage inserts the item inside one transaction and commits. On any
// error the transaction rolls back and no row exists; the caller then
// reports PaymentCreationFailed instead of leaving the saga stuck.
func (s *Store) Stage(ctx context.Context, item *Item) error {
	items, err := json.Marshal(item.OrderItems)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	item.ID = uuid.New().String()
	item.Status = StatusPending
	item.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, order_id, user_id, total_amount, order_items, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.OrderID, item.UserID, item.TotalAmount, items, item.Status, item.CreatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Claim flips a pending row to dispatched and reports whether this
// caller won the row. A second claim for the same row returns false,
// which is what makes duplicate processing a no-op.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET status = $2, dispatched_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, StatusDispatched, StatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

// MarkFailed records that acting on a claimed row did not succeed.
// Failed rows are terminal: the saga compensates through events, it
// does not retry the payment.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = $2 WHERE id = $1
	`, id, StatusFailed)
	return err
}

// ListPending returns rows staged at least minAge ago that no
// processor has claimed, oldest first. The age floor keeps the
// sweeper from racing the synchronous post-commit path.
func (s *Store) ListPending(ctx context.Context, minAge time.Duration, limit int) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, user_id, total_amount, order_items, status, created_at
		FROM outbox
		WHERE status = $1 AND created_at <= $2
		ORDER BY created_at
		LIMIT $3
	`, StatusPending, time.Now().UTC().Add(-minAge), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		var item Item
		var rawItems []byte
		if err := rows.Scan(&item.ID, &item.OrderID, &item.UserID, &item.TotalAmount, &rawItems, &item.Status, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawItems, &item.OrderItems); err != nil {
			return nil, fmt.Errorf("unmarshal order items for outbox %s: %w", item.ID, err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
