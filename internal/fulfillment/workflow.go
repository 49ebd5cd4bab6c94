// Package fulfillment coordinates order placement and reversal across the
// order store, the inventory store and the slot allocator.
package fulfillment

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/models"
)

// InventoryStore is the product persistence contract. Quantity mutation is a
// fetch-mutate-persist sequence; the workflow serializes it per product id.
type InventoryStore interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdateProduct(ctx context.Context, id int64, p *models.Product) (*models.Product, error)
}

type OrderStore interface {
	SaveOrder(ctx context.Context, o *models.Order) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	ListOrders(ctx context.Context) ([]models.Order, error)
	PatchOrder(ctx context.Context, id int64, userID, slotID *int64) (*models.Order, error)
}

type SlotAllocator interface {
	Increment(ctx context.Context, id int64) (slot *models.Slot, filled bool, err error)
	Decrement(ctx context.Context, id int64) (*models.Slot, error)
}

// Workflow runs order creation and deletion as one logical unit of work.
//
// With Atomic unset it keeps the legacy best-effort policy: the order header
// is the success boundary, and inventory or slot bookkeeping failures after
// the header persists are logged and swallowed. With Atomic set, any
// side-effect failure compensates the steps already applied, removes the
// header, and fails the whole placement.
type Workflow struct {
	Orders    OrderStore
	Inventory InventoryStore
	Slots     SlotAllocator
	Atomic    bool

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewWorkflow(orders OrderStore, inventory InventoryStore, slots SlotAllocator, atomic bool) *Workflow {
	return &Workflow{
		Orders:    orders,
		Inventory: inventory,
		Slots:     slots,
		Atomic:    atomic,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// PlaceResult reports the persisted order, the slot state after the
// placement (nil when the order has no slot reference or the slot side
// effect failed), and whether this placement filled the slot.
type PlaceResult struct {
	Order      *models.Order
	Slot       *models.Slot
	SlotFilled bool
}

func (w *Workflow) productLock(id int64) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.locks[id]
	if !ok {
		l = &sync.Mutex{}
		w.locks[id] = l
	}
	return l
}

// lockProducts acquires per-product locks in ascending id order so that two
// orders spanning the same products cannot deadlock. The returned func
// releases them in reverse order.
func (w *Workflow) lockProducts(items []models.OrderItem) func() {
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		w.productLock(id).Lock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			w.productLock(ids[i]).Unlock()
		}
	}
}

// Create persists the order header with its item snapshot, then applies the
// inventory decrement per line item and the slot increment when the order
// carries a slot reference.
func (w *Workflow) Create(ctx context.Context, order *models.Order) (*PlaceResult, error) {
	saved, err := w.Orders.SaveOrder(ctx, order)
	if err != nil {
		return nil, err
	}

	if w.Atomic {
		return w.applyAtomic(ctx, saved)
	}
	return w.applyBestEffort(ctx, saved), nil
}

func (w *Workflow) applyBestEffort(ctx context.Context, order *models.Order) *PlaceResult {
	unlock := w.lockProducts(order.Items)
	defer unlock()

	for _, item := range order.Items {
		if err := w.adjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
			log.Printf("order %d: adjust stock for product %d failed: %v", order.ID, item.ProductID, err)
		}
	}

	result := &PlaceResult{Order: order}
	if order.SlotID != nil {
		slot, filled, err := w.Slots.Increment(ctx, *order.SlotID)
		if err != nil {
			log.Printf("order %d: slot %d increment failed: %v", order.ID, *order.SlotID, err)
		} else {
			result.Slot = slot
			result.SlotFilled = filled
		}
	}

	return result
}

func (w *Workflow) applyAtomic(ctx context.Context, order *models.Order) (*PlaceResult, error) {
	unlock := w.lockProducts(order.Items)
	defer unlock()

	var applied []models.OrderItem
	unwind := func() {
		for i := len(applied) - 1; i >= 0; i-- {
			if err := w.adjustStock(ctx, applied[i].ProductID, applied[i].Quantity); err != nil {
				log.Printf("order %d: compensation restock for product %d failed: %v", order.ID, applied[i].ProductID, err)
			}
		}
		if err := w.Orders.DeleteOrder(ctx, order.ID); err != nil {
			log.Printf("order %d: removing header after failed placement: %v", order.ID, err)
		}
	}

	for _, item := range order.Items {
		if err := w.decrementChecked(ctx, item.ProductID, item.Quantity); err != nil {
			unwind()
			return nil, err
		}
		applied = append(applied, item)
	}

	result := &PlaceResult{Order: order}
	if order.SlotID != nil {
		slot, filled, err := w.Slots.Increment(ctx, *order.SlotID)
		if err != nil {
			unwind()
			return nil, err
		}
		result.Slot = slot
		result.SlotFilled = filled
	}

	return result, nil
}

// adjustStock applies a signed quantity delta to a product. Legacy behavior
// is plain arithmetic: best-effort placement may drive quantity negative when
// stock was insufficient, and reversal adds it back symmetrically.
func (w *Workflow) adjustStock(ctx context.Context, productID int64, delta int) error {
	product, err := w.Inventory.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	product.Quantity += delta
	_, err = w.Inventory.UpdateProduct(ctx, productID, product)
	return err
}

func (w *Workflow) decrementChecked(ctx context.Context, productID int64, quantity int) error {
	product, err := w.Inventory.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Quantity < quantity {
		return database.ErrInsufficientStock
	}

	product.Quantity -= quantity
	_, err = w.Inventory.UpdateProduct(ctx, productID, product)
	return err
}

// Delete reverses an order: restock every line item, release the slot unit,
// then remove the order record. Only a missing order is a hard failure; the
// compensating side effects stay best-effort in both modes.
func (w *Workflow) Delete(ctx context.Context, id int64) (*models.Order, error) {
	order, err := w.Orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := w.lockProducts(order.Items)

	for _, item := range order.Items {
		if err := w.adjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("order %d: restock for product %d failed: %v", order.ID, item.ProductID, err)
		}
	}
	unlock()

	if order.SlotID != nil {
		if _, err := w.Slots.Decrement(ctx, *order.SlotID); err != nil {
			log.Printf("order %d: slot %d decrement failed: %v", order.ID, *order.SlotID, err)
		}
	}

	if err := w.Orders.DeleteOrder(ctx, id); err != nil {
		return nil, err
	}

	return order, nil
}

// Update is a shallow patch of the user and slot references. It does not
// re-run inventory or slot reconciliation even when the slot changes.
func (w *Workflow) Update(ctx context.Context, id int64, userID, slotID *int64) (*models.Order, error) {
	return w.Orders.PatchOrder(ctx, id, userID, slotID)
}

func (w *Workflow) Get(ctx context.Context, id int64) (*models.Order, error) {
	return w.Orders.GetOrder(ctx, id)
}

func (w *Workflow) List(ctx context.Context) ([]models.Order, error) {
	return w.Orders.ListOrders(ctx)
}
