package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/tricto/go-slot-store/internal/events"
	"github.com/tricto/go-slot-store/internal/fulfillment"
	"github.com/tricto/go-slot-store/internal/models"
	"github.com/tricto/go-slot-store/internal/redisx"
)

type OrdersHandler struct {
	Flow     *fulfillment.Workflow
	Producer *events.Producer
	Redis    *redis.Client
	Service  string
}

type CreateOrderReq struct {
	UserID int64              `json:"user_id"`
	SlotID *int64             `json:"slot_id,omitempty"`
	Items  []models.OrderItem `json:"items"`
}

type PatchOrderReq struct {
	UserID *int64 `json:"user_id,omitempty"`
	SlotID *int64 `json:"slot_id,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Patch("/{id}", h.patchOrder)
		r.Delete("/{id}", h.deleteOrder)
	})
}

func orderID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *OrdersHandler) invalidateSlot(ctx context.Context, slotID *int64) {
	if h.Redis == nil || slotID == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeySlotState, *slotID)).Err()
}

func (h *OrdersHandler) publish(topic, eventType string, orderID int64, payload any) {
	if h.Producer == nil {
		return
	}
	correlation := strconv.FormatInt(orderID, 10)
	h.Producer.Publish(topic, events.NewEnvelope(eventType, h.Service, correlation, payload))
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.UserID == 0 {
		writeBadRequest(w, "user_id is required")
		return
	}

	order := &models.Order{
		UserID: req.UserID,
		SlotID: req.SlotID,
		Items:  req.Items,
	}

	result, err := h.Flow.Create(r.Context(), order)
	if err != nil {
		writeError(w, err)
		return
	}

	h.invalidateSlot(r.Context(), result.Order.SlotID)

	h.publish(events.TopicOrderPlaced, events.EventOrderPlaced, result.Order.ID, events.OrderPlacedPayload{
		OrderID: result.Order.ID,
		UserID:  result.Order.UserID,
		SlotID:  result.Order.SlotID,
		Items:   result.Order.Items,
	})
	if result.SlotFilled && result.Slot != nil {
		h.publish(events.TopicSlotFull, events.EventSlotFull, result.Order.ID, events.SlotFullPayload{
			SlotID:      result.Slot.ID,
			ProductID:   result.Slot.ProductID,
			MaxCapacity: result.Slot.MaxCapacity,
		})
	}

	writeJSON(w, http.StatusCreated, result.Order)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeBadRequest(w, "invalid order id")
		return
	}

	order, err := h.Flow.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Flow.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) patchOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeBadRequest(w, "invalid order id")
		return
	}

	var req PatchOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	order, err := h.Flow.Update(r.Context(), id, req.UserID, req.SlotID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeBadRequest(w, "invalid order id")
		return
	}

	order, err := h.Flow.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	h.invalidateSlot(r.Context(), order.SlotID)

	h.publish(events.TopicOrderReversed, events.EventOrderReversed, order.ID, events.OrderReversedPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		SlotID:  order.SlotID,
		Items:   order.Items,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "order deleted"})
}
