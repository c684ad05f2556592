package handler

import (
	"context"
	"net/http"

	"github.com/comanda-pos/api/internal/database"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CatalogStore defines the database methods needed by catalog handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]database.Product, error)
	ListProductIngredients(ctx context.Context, productID uuid.UUID) ([]database.ListProductIngredientsRow, error)
}

// CatalogHandler handles read-only product catalog endpoints.
type CatalogHandler struct {
	store CatalogStore
}

// NewCatalogHandler creates a new CatalogHandler.
func NewCatalogHandler(store CatalogStore) *CatalogHandler {
	return &CatalogHandler{store: store}
}

// RegisterRoutes registers catalog endpoints on the given Chi router.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/products", h.List)
	r.Get("/products/{id}/ingredients", h.ListIngredients)
}

type productResponse struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	TrackStock bool      `json:"track_stock"`
	Active     bool      `json:"active"`
}

type productIngredientResponse struct {
	IngredientID uuid.UUID `json:"ingredient_id"`
	Name         string    `json:"name"`
	Quantity     string    `json:"quantity"`
}

// List returns the active product catalog.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		respondServiceError(w, "list products", err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:         p.ID,
			Name:       p.Name,
			Price:      numericToString(p.Price),
			TrackStock: p.TrackStock,
			Active:     p.Active,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListIngredients returns the recipe for a product.
func (h *CatalogHandler) ListIngredients(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	rows, err := h.store.ListProductIngredients(r.Context(), id)
	if err != nil {
		respondServiceError(w, "list product ingredients", err)
		return
	}

	resp := make([]productIngredientResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, productIngredientResponse{
			IngredientID: row.IngredientID,
			Name:         row.Name,
			Quantity:     numericToString(row.Quantity),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
