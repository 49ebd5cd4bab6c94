// Package slot implements the discount-slot state machine. A slot moves
// between empty, partial and full as orders consume and release capacity:
// increments are blocked once the slot is full, decrements clamp at zero,
// and resets force a slot back to empty.
package slot

import (
	"context"
	"sync"

	"github.com/tricto/go-slot-store/internal/models"
)

// DefaultNearFullThreshold is how close to capacity a slot must be before it
// shows up in operator monitoring.
const DefaultNearFullThreshold = 5

// Store is the persistence contract the allocator mutates slots through.
type Store interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	UpdateSlot(ctx context.Context, id int64, slot *models.Slot) (*models.Slot, error)
	ListAllSlots(ctx context.Context) ([]models.Slot, error)
}

// Allocator serializes occupancy mutations per slot id. Without this, two
// concurrent placements can both read occupancy N-1 and both write N, losing
// an increment. Cross-process writers are covered by the store's version check.
type Allocator struct {
	store Store

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewAllocator(store Store) *Allocator {
	return &Allocator{
		store: store,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (a *Allocator) lock(id int64) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

// Increment consumes one unit of slot capacity. A slot that is already full
// drops the increment silently: occupancy never exceeds capacity. Returns the
// slot after the mutation and whether this call flipped it to full.
func (a *Allocator) Increment(ctx context.Context, id int64) (*models.Slot, bool, error) {
	l := a.lock(id)
	l.Lock()
	defer l.Unlock()

	slot, err := a.store.GetSlot(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if slot.IsFull {
		return slot, false, nil
	}

	slot.CurrentOccupancy++
	slot.IsFull = slot.AtCapacity()

	updated, err := a.store.UpdateSlot(ctx, id, slot)
	if err != nil {
		return nil, false, err
	}

	return updated, updated.IsFull, nil
}

// Decrement releases one unit of slot capacity. Occupancy clamps at zero: a
// decrement against an empty slot is a no-op rather than an underflow.
func (a *Allocator) Decrement(ctx context.Context, id int64) (*models.Slot, error) {
	l := a.lock(id)
	l.Lock()
	defer l.Unlock()

	slot, err := a.store.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}

	if slot.CurrentOccupancy > 0 {
		slot.CurrentOccupancy--
	}
	slot.IsFull = slot.AtCapacity()

	return a.store.UpdateSlot(ctx, id, slot)
}

// Reset forces a slot back to empty. Operator recovery path.
func (a *Allocator) Reset(ctx context.Context, id int64) (*models.Slot, error) {
	l := a.lock(id)
	l.Lock()
	defer l.Unlock()

	slot, err := a.store.GetSlot(ctx, id)
	if err != nil {
		return nil, err
	}

	slot.CurrentOccupancy = 0
	slot.IsFull = false

	return a.store.UpdateSlot(ctx, id, slot)
}

// ResetAllFull resets every slot currently marked full and returns the slots
// it reset. Used by the periodic pending-slot cleanup.
func (a *Allocator) ResetAllFull(ctx context.Context) ([]models.Slot, error) {
	slots, err := a.store.ListAllSlots(ctx)
	if err != nil {
		return nil, err
	}

	var reset []models.Slot
	for _, s := range slots {
		if !s.IsFull {
			continue
		}
		updated, err := a.Reset(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		reset = append(reset, *updated)
	}

	return reset, nil
}

// NearFull returns slots within threshold units of capacity that have not
// filled yet. A threshold <= 0 falls back to DefaultNearFullThreshold.
func (a *Allocator) NearFull(ctx context.Context, threshold int) ([]models.Slot, error) {
	if threshold <= 0 {
		threshold = DefaultNearFullThreshold
	}

	slots, err := a.store.ListAllSlots(ctx)
	if err != nil {
		return nil, err
	}

	var near []models.Slot
	for _, s := range slots {
		if !s.IsFull && s.CurrentOccupancy >= s.MaxCapacity-threshold {
			near = append(near, s)
		}
	}

	return near, nil
}
