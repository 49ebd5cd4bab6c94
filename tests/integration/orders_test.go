package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/tricto/go-slot-store/internal/database"
	"github.com/tricto/go-slot-store/internal/fulfillment"
	"github.com/tricto/go-slot-store/internal/models"
	"github.com/tricto/go-slot-store/internal/slot"
	"github.com/tricto/go-slot-store/internal/store"
)

func TestOrderLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := createTestProduct(t, db, 100)
	orders := &store.OrderStore{DB: db}

	saved, err := orders.SaveOrder(ctx, &models.Order{
		UserID: 7,
		Items: []models.OrderItem{
			{
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    2,
				ImageURL:    product.ImageURL,
			},
		},
	})
	if err != nil {
		t.Fatalf("Save order: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("Expected non-zero order id")
	}

	fetched, err := orders.GetOrder(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if fetched.UserID != 7 {
		t.Errorf("Expected user 7, got %d", fetched.UserID)
	}
	if len(fetched.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(fetched.Items))
	}
	if fetched.Items[0].ProductID != product.ID || fetched.Items[0].Quantity != 2 {
		t.Errorf("Item snapshot does not match: %+v", fetched.Items[0])
	}
	if !fetched.Items[0].Price.Equal(product.Price) {
		t.Errorf("Expected price %s, got %s", product.Price, fetched.Items[0].Price)
	}

	newUser := int64(9)
	patched, err := orders.PatchOrder(ctx, saved.ID, &newUser, nil)
	if err != nil {
		t.Fatalf("Patch order: %v", err)
	}
	if patched.UserID != 9 {
		t.Errorf("Expected user 9 after patch, got %d", patched.UserID)
	}
	if len(patched.Items) != 1 {
		t.Errorf("Patch must not rewrite items, got %d", len(patched.Items))
	}

	all, err := orders.ListOrders(ctx)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Expected 1 order, got %d", len(all))
	}

	if err := orders.DeleteOrder(ctx, saved.ID); err != nil {
		t.Fatalf("Delete order: %v", err)
	}
	if err := orders.DeleteOrder(ctx, saved.ID); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestOrderWithoutItems(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	orders := &store.OrderStore{DB: db}

	saved, err := orders.SaveOrder(ctx, &models.Order{UserID: 1})
	if err != nil {
		t.Fatalf("Save order: %v", err)
	}

	fetched, err := orders.GetOrder(ctx, saved.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if fetched.Items != nil {
		t.Errorf("Expected no items, got %v", fetched.Items)
	}
	if fetched.SlotID != nil {
		t.Errorf("Expected nil slot reference, got %v", fetched.SlotID)
	}
}

func TestFulfillmentRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := createTestProduct(t, db, 5)

	products := &store.ProductStore{DB: db}
	orders := &store.OrderStore{DB: db}
	slots := &store.SlotStore{DB: db}
	alloc := slot.NewAllocator(slots)
	flow := fulfillment.NewWorkflow(orders, products, alloc, false)

	created, err := slots.CreateSlot(ctx, &models.Slot{
		ProductID:          product.ID,
		MaxCapacity:        10,
		DiscountPercentage: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Create slot: %v", err)
	}

	result, err := flow.Create(ctx, &models.Order{
		UserID: 1,
		SlotID: &created.ID,
		Items: []models.OrderItem{
			{
				ProductID:   product.ID,
				ProductName: product.Name,
				Price:       product.Price,
				Quantity:    3,
			},
		},
	})
	if err != nil {
		t.Fatalf("Place order: %v", err)
	}

	afterPlace, err := products.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if afterPlace.Quantity != 2 {
		t.Errorf("Expected quantity 2 after placement, got %d", afterPlace.Quantity)
	}

	slotAfterPlace, err := slots.GetSlot(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get slot: %v", err)
	}
	if slotAfterPlace.CurrentOccupancy != 1 {
		t.Errorf("Expected occupancy 1 after placement, got %d", slotAfterPlace.CurrentOccupancy)
	}

	if _, err := flow.Delete(ctx, result.Order.ID); err != nil {
		t.Fatalf("Delete order: %v", err)
	}

	afterDelete, err := products.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if afterDelete.Quantity != 5 {
		t.Errorf("Expected quantity restored to 5, got %d", afterDelete.Quantity)
	}

	slotAfterDelete, err := slots.GetSlot(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get slot: %v", err)
	}
	if slotAfterDelete.CurrentOccupancy != 0 {
		t.Errorf("Expected occupancy back to 0, got %d", slotAfterDelete.CurrentOccupancy)
	}
}

func TestAtomicFulfillmentRejectsShortStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := createTestProduct(t, db, 2)

	products := &store.ProductStore{DB: db}
	orders := &store.OrderStore{DB: db}
	slots := &store.SlotStore{DB: db}
	flow := fulfillment.NewWorkflow(orders, products, slot.NewAllocator(slots), true)

	_, err := flow.Create(ctx, &models.Order{
		UserID: 1,
		Items: []models.OrderItem{
			{ProductID: product.ID, ProductName: product.Name, Price: product.Price, Quantity: 3},
		},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected ErrInsufficientStock, got %v", err)
	}

	after, err := products.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Quantity != 2 {
		t.Errorf("Stock should be untouched, got %d", after.Quantity)
	}

	remaining, err := orders.ListOrders(ctx)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if len(remaining) != 0 {
		t.Errorf("Failed placement should leave no order, got %d", len(remaining))
	}
}
