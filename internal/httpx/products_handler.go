package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/tricto/go-slot-store/internal/models"
	"github.com/tricto/go-slot-store/internal/store"
)

// ProductsHandler exposes the minimal catalog surface needed to seed slots
// and orders. Search and browse live elsewhere.
type ProductsHandler struct {
	Products *store.ProductStore
}

type ProductRequest struct {
	CategoryID *int64  `json:"category_id,omitempty"`
	Name       string  `json:"name"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
	ImageURL   string  `json:"image_url,omitempty"`
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Route("/products", func(r chi.Router) {
		r.Post("/", h.createProduct)
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
	})
}

func (h *ProductsHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	product, err := h.Products.CreateProduct(r.Context(), &models.Product{
		CategoryID: req.CategoryID,
		Name:       req.Name,
		Price:      decimal.NewFromFloat(req.Price),
		Quantity:   req.Quantity,
		ImageURL:   req.ImageURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

func (h *ProductsHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid product id")
		return
	}

	product, err := h.Products.GetProduct(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *ProductsHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := h.Products.ListProducts(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
