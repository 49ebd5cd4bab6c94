package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/tricto/go-slot-store/internal/models"
	"github.com/tricto/go-slot-store/internal/redisx"
	"github.com/tricto/go-slot-store/internal/slot"
	"github.com/tricto/go-slot-store/internal/store"
)

type SlotsHandler struct {
	Slots *store.SlotStore
	Alloc *slot.Allocator
	Redis *redis.Client
}

type SlotRequest struct {
	ProductID          int64           `json:"product_id"`
	MaxCapacity        int             `json:"max_capacity"`
	CurrentOccupancy   int             `json:"current_occupancy"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
}

func (h *SlotsHandler) Register(r *chi.Mux) {
	r.Route("/slots", func(r chi.Router) {
		r.Post("/", h.createSlot)
		r.Get("/", h.listSlots)
		r.Get("/near-full", h.nearFullSlots)
		r.Post("/reset-all-pending", h.resetAllPending)
		r.Post("/cleanup-duplicates", h.cleanupDuplicates)
		r.Get("/product/{productId}", h.listByProduct)
		r.Get("/{id}", h.getSlot)
		r.Put("/{id}", h.updateSlot)
		r.Delete("/{id}", h.deleteSlot)
		r.Post("/{id}/reset", h.resetSlot)
	})
}

func slotID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func (h *SlotsHandler) invalidate(ctx context.Context, id int64) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeySlotState, id)).Err()
}

func (h *SlotsHandler) createSlot(w http.ResponseWriter, r *http.Request) {
	var req SlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.MaxCapacity < 1 {
		writeBadRequest(w, "max_capacity must be at least 1")
		return
	}

	s := &models.Slot{
		ProductID:          req.ProductID,
		MaxCapacity:        req.MaxCapacity,
		CurrentOccupancy:   req.CurrentOccupancy,
		DiscountPercentage: req.DiscountPercentage,
	}
	s.IsFull = s.AtCapacity()

	created, err := h.Slots.CreateSlot(r.Context(), s)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *SlotsHandler) getSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		writeBadRequest(w, "invalid slot id")
		return
	}
	ctx := r.Context()

	key := fmt.Sprintf(redisx.KeySlotState, id)
	if h.Redis != nil {
		if cached, err := h.Redis.Get(ctx, key).Result(); err == nil && cached != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(cached))
			return
		}
	}

	s, err := h.Slots.GetSlot(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		if b, err := json.Marshal(s); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLSlotState).Err()
		}
	}

	writeJSON(w, http.StatusOK, s)
}

func (h *SlotsHandler) listSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.Slots.ListAllSlots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *SlotsHandler) listByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productId"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid product id")
		return
	}

	slots, err := h.Slots.ListSlotsByProduct(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *SlotsHandler) nearFullSlots(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.Atoi(r.URL.Query().Get("threshold"))

	slots, err := h.Alloc.NearFull(r.Context(), threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *SlotsHandler) updateSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		writeBadRequest(w, "invalid slot id")
		return
	}

	var req SlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.MaxCapacity < 1 {
		writeBadRequest(w, "max_capacity must be at least 1")
		return
	}

	ctx := r.Context()
	existing, err := h.Slots.GetSlot(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	existing.ProductID = req.ProductID
	existing.MaxCapacity = req.MaxCapacity
	existing.CurrentOccupancy = req.CurrentOccupancy
	existing.DiscountPercentage = req.DiscountPercentage
	existing.IsFull = existing.AtCapacity()

	updated, err := h.Slots.UpdateSlot(ctx, id, existing)
	if err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(ctx, id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *SlotsHandler) deleteSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		writeBadRequest(w, "invalid slot id")
		return
	}

	if err := h.Slots.DeleteSlot(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *SlotsHandler) resetSlot(w http.ResponseWriter, r *http.Request) {
	id, err := slotID(r)
	if err != nil {
		writeBadRequest(w, "invalid slot id")
		return
	}

	s, err := h.Alloc.Reset(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(r.Context(), id)
	writeJSON(w, http.StatusOK, s)
}

func (h *SlotsHandler) resetAllPending(w http.ResponseWriter, r *http.Request) {
	reset, err := h.Alloc.ResetAllFull(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	for _, s := range reset {
		h.invalidate(r.Context(), s.ID)
	}
	writeJSON(w, http.StatusOK, reset)
}

func (h *SlotsHandler) cleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Slots.DeleteDuplicateSlots(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
