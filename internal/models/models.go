package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID         int64           `json:"id"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	ImageURL   string          `json:"image_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Version    int             `json:"version"`
}

// Slot is a capacity-bounded discount tier bound to one product. Occupancy is
// mutated only through the allocator; IsFull is derived from occupancy and
// capacity after every mutation.
type Slot struct {
	ID                 int64           `json:"id"`
	ProductID          int64           `json:"product_id"`
	MaxCapacity        int             `json:"max_capacity"`
	CurrentOccupancy   int             `json:"current_occupancy"`
	IsFull             bool            `json:"is_full"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Version            int             `json:"version"`
}

// AtCapacity reports whether occupancy has reached capacity.
func (s *Slot) AtCapacity() bool {
	return s.CurrentOccupancy >= s.MaxCapacity
}

// Order holds a denormalized snapshot of its line items, serialized as JSON
// into a single text column. SlotID is optional: legacy single-slot orders
// carry one, multi-item orders may not.
type Order struct {
	ID        int64       `json:"id"`
	UserID    int64       `json:"user_id"`
	SlotID    *int64      `json:"slot_id,omitempty"`
	Items     []OrderItem `json:"items,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// OrderItem is one line of an order's item snapshot. Name, price and image are
// captured at order time and immune to later catalog edits.
type OrderItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image_url,omitempty"`
}
