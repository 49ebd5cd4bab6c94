package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tricto/go-slot-store/internal/database"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// writeError maps the store sentinels onto HTTP statuses: missing aggregates
// are 404, a slot without a product is 400, stock and version conflicts 409,
// anything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrSlotNotFound),
		errors.Is(err, database.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, database.ErrSlotProductRequired):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrOptimisticLockFailed):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}
