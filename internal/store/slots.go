package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/models"
)

// SlotStore owns the slots table. Occupancy writes go through UpdateSlot and
// are guarded by the version column so that concurrent writers from other
// processes cannot silently lose an increment.
type SlotStore struct {
	DB *sql.DB
}

const slotColumns = "id, product_id, max_capacity, current_occupancy, is_full, discount_percentage, created_at, updated_at, version"

func scanSlot(row interface{ Scan(...any) error }) (*models.Slot, error) {
	slot := &models.Slot{}
	err := row.Scan(
		&slot.ID,
		&slot.ProductID,
		&slot.MaxCapacity,
		&slot.CurrentOccupancy,
		&slot.IsFull,
		&slot.DiscountPercentage,
		&slot.CreatedAt,
		&slot.UpdatedAt,
		&slot.Version,
	)
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// CreateSlot inserts a slot against an existing product. A slot without a
// product reference is rejected before touching the database.
func (s *SlotStore) CreateSlot(ctx context.Context, slot *models.Slot) (*models.Slot, error) {
	if slot.ProductID == 0 {
		return nil, database.ErrSlotProductRequired
	}

	var created *models.Slot
	err := database.WithTransaction(ctx, s.DB, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, slot.ProductID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check product exists: %w", err)
		}
		if !exists {
			return database.ErrProductNotFound
		}

		query := `
			INSERT INTO slots (product_id, max_capacity, current_occupancy, is_full, discount_percentage, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW(), 1)
			RETURNING ` + slotColumns

		created, err = scanSlot(tx.QueryRowContext(ctx, query,
			slot.ProductID, slot.MaxCapacity, slot.CurrentOccupancy, slot.IsFull, slot.DiscountPercentage))
		if err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (s *SlotStore) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = $1`

	slot, err := scanSlot(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrSlotNotFound
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}

	return slot, nil
}

func (s *SlotStore) UpdateSlot(ctx context.Context, id int64, slot *models.Slot) (*models.Slot, error) {
	query := `
		UPDATE slots
		SET product_id = $2, max_capacity = $3, current_occupancy = $4, is_full = $5,
		    discount_percentage = $6, updated_at = NOW(), version = version + 1
		WHERE id = $1 AND version = $7
		RETURNING ` + slotColumns

	updated, err := scanSlot(s.DB.QueryRowContext(ctx, query,
		id, slot.ProductID, slot.MaxCapacity, slot.CurrentOccupancy, slot.IsFull,
		slot.DiscountPercentage, slot.Version))
	if err != nil {
		if err == sql.ErrNoRows {
			var exists bool
			if checkErr := s.DB.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM slots WHERE id = $1)`, id).Scan(&exists); checkErr != nil {
				return nil, fmt.Errorf("check slot exists: %w", checkErr)
			}
			if !exists {
				return nil, database.ErrSlotNotFound
			}
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("update slot: %w", err)
	}

	return updated, nil
}

func (s *SlotStore) DeleteSlot(ctx context.Context, id int64) error {
	result, err := s.DB.ExecContext(ctx, `DELETE FROM slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrSlotNotFound
	}

	return nil
}

func (s *SlotStore) ListSlotsByProduct(ctx context.Context, productID int64) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE product_id = $1 ORDER BY id`
	return s.querySlots(ctx, query, productID)
}

func (s *SlotStore) ListAllSlots(ctx context.Context) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots ORDER BY id`
	return s.querySlots(ctx, query)
}

func (s *SlotStore) querySlots(ctx context.Context, query string, args ...any) ([]models.Slot, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var slots []models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return slots, nil
}

// DeleteDuplicateSlots keeps the lowest-id slot per (product, discount) pair
// and deletes the rest. Runs with retry since it can deadlock against
// concurrent slot writes.
func (s *SlotStore) DeleteDuplicateSlots(ctx context.Context) (int64, error) {
	var deleted int64

	err := database.WithRetry(ctx, s.DB, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM slots
			WHERE id NOT IN (
				SELECT MIN(id) FROM slots GROUP BY product_id, discount_percentage
			)`)
		if err != nil {
			return fmt.Errorf("delete duplicate slots: %w", err)
		}

		deleted, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}
