package slot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/models"
)

type fakeSlotStore struct {
	mu    sync.Mutex
	slots map[int64]*models.Slot
}

func newFakeSlotStore(slots ...*models.Slot) *fakeSlotStore {
	f := &fakeSlotStore{slots: make(map[int64]*models.Slot)}
	for _, s := range slots {
		copied := *s
		f.slots[s.ID] = &copied
	}
	return f
}

func (f *fakeSlotStore) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.slots[id]
	if !ok {
		return nil, database.ErrSlotNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSlotStore) UpdateSlot(ctx context.Context, id int64, slot *models.Slot) (*models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.slots[id]; !ok {
		return nil, database.ErrSlotNotFound
	}
	copied := *slot
	copied.Version++
	f.slots[id] = &copied
	result := copied
	return &result, nil
}

func (f *fakeSlotStore) ListAllSlots(ctx context.Context) ([]models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Slot
	for _, s := range f.slots {
		out = append(out, *s)
	}
	return out, nil
}

func testSlot(id int64, capacity, occupancy int) *models.Slot {
	return &models.Slot{
		ID:               id,
		ProductID:        1,
		MaxCapacity:      capacity,
		CurrentOccupancy: occupancy,
		IsFull:           occupancy >= capacity,
		Version:          1,
	}
}

func TestIncrementDerivesFullFlag(t *testing.T) {
	store := newFakeSlotStore(testSlot(1, 3, 0))
	alloc := NewAllocator(store)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s, filled, err := alloc.Increment(ctx, 1)
		if err != nil {
			t.Fatalf("Increment %d: %v", i, err)
		}
		if s.CurrentOccupancy != i {
			t.Errorf("Expected occupancy %d, got %d", i, s.CurrentOccupancy)
		}
		wantFull := i >= 3
		if s.IsFull != wantFull {
			t.Errorf("After increment %d: expected isFull=%v, got %v", i, wantFull, s.IsFull)
		}
		if filled != (i == 3) {
			t.Errorf("After increment %d: expected filled=%v, got %v", i, i == 3, filled)
		}
	}
}

func TestIncrementBlockedWhenFull(t *testing.T) {
	store := newFakeSlotStore(testSlot(1, 10, 9))
	alloc := NewAllocator(store)
	ctx := context.Background()

	s, filled, err := alloc.Increment(ctx, 1)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if s.CurrentOccupancy != 10 || !s.IsFull {
		t.Fatalf("Expected occupancy 10 and full, got occupancy=%d full=%v", s.CurrentOccupancy, s.IsFull)
	}
	if !filled {
		t.Error("Expected the increment to report the slot filled")
	}

	s, filled, err = alloc.Increment(ctx, 1)
	if err != nil {
		t.Fatalf("Increment on full slot: %v", err)
	}
	if s.CurrentOccupancy != 10 {
		t.Errorf("Increment on full slot should be a no-op, got occupancy %d", s.CurrentOccupancy)
	}
	if !s.IsFull {
		t.Error("Slot should stay full")
	}
	if filled {
		t.Error("Blocked increment must not report a fill")
	}
}

func TestIncrementMissingSlot(t *testing.T) {
	alloc := NewAllocator(newFakeSlotStore())

	_, _, err := alloc.Increment(context.Background(), 42)
	if !errors.Is(err, database.ErrSlotNotFound) {
		t.Errorf("Expected ErrSlotNotFound, got %v", err)
	}
}

func TestDecrementClearsFullFlag(t *testing.T) {
	store := newFakeSlotStore(testSlot(1, 5, 5))
	alloc := NewAllocator(store)

	s, err := alloc.Decrement(context.Background(), 1)
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if s.CurrentOccupancy != 4 {
		t.Errorf("Expected occupancy 4, got %d", s.CurrentOccupancy)
	}
	if s.IsFull {
		t.Error("Slot below capacity should not be full")
	}
}

func TestDecrementClampsAtZero(t *testing.T) {
	store := newFakeSlotStore(testSlot(1, 5, 0))
	alloc := NewAllocator(store)

	s, err := alloc.Decrement(context.Background(), 1)
	if err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if s.CurrentOccupancy != 0 {
		t.Errorf("Decrement on empty slot should clamp at 0, got %d", s.CurrentOccupancy)
	}
}

func TestDecrementMissingSlot(t *testing.T) {
	alloc := NewAllocator(newFakeSlotStore())

	_, err := alloc.Decrement(context.Background(), 42)
	if !errors.Is(err, database.ErrSlotNotFound) {
		t.Errorf("Expected ErrSlotNotFound, got %v", err)
	}
}

func TestResetForcesEmpty(t *testing.T) {
	store := newFakeSlotStore(testSlot(1, 5, 5), testSlot(2, 8, 3))
	alloc := NewAllocator(store)
	ctx := context.Background()

	for _, id := range []int64{1, 2} {
		s, err := alloc.Reset(ctx, id)
		if err != nil {
			t.Fatalf("Reset slot %d: %v", id, err)
		}
		if s.CurrentOccupancy != 0 || s.IsFull {
			t.Errorf("Slot %d: expected empty after reset, got occupancy=%d full=%v", id, s.CurrentOccupancy, s.IsFull)
		}
	}
}

func TestResetAllFull(t *testing.T) {
	store := newFakeSlotStore(
		testSlot(1, 5, 5),
		testSlot(2, 8, 3),
		testSlot(3, 2, 2),
	)
	alloc := NewAllocator(store)

	reset, err := alloc.ResetAllFull(context.Background())
	if err != nil {
		t.Fatalf("ResetAllFull: %v", err)
	}
	if len(reset) != 2 {
		t.Fatalf("Expected 2 slots reset, got %d", len(reset))
	}
	for _, s := range reset {
		if s.CurrentOccupancy != 0 || s.IsFull {
			t.Errorf("Slot %d: expected empty after reset, got occupancy=%d full=%v", s.ID, s.CurrentOccupancy, s.IsFull)
		}
	}

	untouched, err := store.GetSlot(context.Background(), 2)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if untouched.CurrentOccupancy != 3 {
		t.Errorf("Partial slot should be untouched, got occupancy %d", untouched.CurrentOccupancy)
	}
}

func TestNearFull(t *testing.T) {
	store := newFakeSlotStore(
		testSlot(1, 10, 6),  // within default threshold
		testSlot(2, 10, 4),  // not near full
		testSlot(3, 10, 10), // full, excluded
		testSlot(4, 3, 1),   // small slot, within threshold
	)
	alloc := NewAllocator(store)

	near, err := alloc.NearFull(context.Background(), 0)
	if err != nil {
		t.Fatalf("NearFull: %v", err)
	}
	got := make(map[int64]bool)
	for _, s := range near {
		got[s.ID] = true
	}
	if len(near) != 2 || !got[1] || !got[4] {
		t.Errorf("Expected slots 1 and 4, got %v", got)
	}

	near, err = alloc.NearFull(context.Background(), 1)
	if err != nil {
		t.Fatalf("NearFull: %v", err)
	}
	if len(near) != 0 {
		t.Errorf("Expected no slots within threshold 1, got %d", len(near))
	}
}

func TestConcurrentIncrements(t *testing.T) {
	const workers = 50
	store := newFakeSlotStore(testSlot(1, 100, 0))
	alloc := NewAllocator(store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := alloc.Increment(ctx, 1); err != nil {
				t.Errorf("Increment: %v", err)
			}
		}()
	}
	wg.Wait()

	s, err := store.GetSlot(ctx, 1)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if s.CurrentOccupancy != workers {
		t.Errorf("Expected occupancy %d after %d concurrent increments, got %d", workers, workers, s.CurrentOccupancy)
	}
}
