package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/models"
)

// OrderStore persists order headers with their line items serialized as a
// JSON array into a single text column.
type OrderStore struct {
	DB *sql.DB
}

func marshalItems(items []models.OrderItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal order items: %w", err)
	}
	return string(b), nil
}

// unmarshalItems tolerates malformed stored JSON: the failure is logged and
// the order is returned without items rather than failing the read.
func unmarshalItems(orderID int64, raw string) []models.OrderItem {
	if raw == "" {
		return nil
	}
	var items []models.OrderItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		log.Printf("order %d: malformed items payload, returning order without items: %v", orderID, err)
		return nil
	}
	return items
}

func (s *OrderStore) SaveOrder(ctx context.Context, o *models.Order) (*models.Order, error) {
	raw, err := marshalItems(o.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{SlotID: o.SlotID, Items: o.Items}
	query := `
		INSERT INTO orders (user_id, slot_id, items, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, user_id, created_at, updated_at`

	err = s.DB.QueryRowContext(ctx, query, o.UserID, o.SlotID, raw).Scan(
		&order.ID,
		&order.UserID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	return order, nil
}

func (s *OrderStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}
	var raw string

	query := `SELECT id, user_id, slot_id, items, created_at, updated_at FROM orders WHERE id = $1`

	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.SlotID,
		&raw,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	order.Items = unmarshalItems(order.ID, raw)

	return order, nil
}

func (s *OrderStore) DeleteOrder(ctx context.Context, id int64) error {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

func (s *OrderStore) ListOrders(ctx context.Context) ([]models.Order, error) {
	query := `SELECT id, user_id, slot_id, items, created_at, updated_at FROM orders ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		var raw string
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.SlotID,
			&raw,
			&order.CreatedAt,
			&order.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Items = unmarshalItems(order.ID, raw)
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// PatchOrder applies a shallow patch of the user and slot references. Nil
// fields keep their current value. Line items are never rewritten.
func (s *OrderStore) PatchOrder(ctx context.Context, id int64, userID, slotID *int64) (*models.Order, error) {
	order := &models.Order{}
	var raw string

	query := `
		UPDATE orders
		SET user_id = COALESCE($2, user_id),
		    slot_id = COALESCE($3, slot_id),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, slot_id, items, created_at, updated_at`

	err := s.DB.QueryRowContext(ctx, query, id, userID, slotID).Scan(
		&order.ID,
		&order.UserID,
		&order.SlotID,
		&raw,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("patch order: %w", err)
	}

	order.Items = unmarshalItems(order.ID, raw)

	return order, nil
}
