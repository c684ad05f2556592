package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockStore defines the database methods needed by stock handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type StockStore interface {
	ListStockItems(ctx context.Context) ([]database.StockItem, error)
	ListLowStockItems(ctx context.Context) ([]database.StockItem, error)
	ListStockMovements(ctx context.Context, arg database.ListStockMovementsParams) ([]database.StockMovement, error)
}

// StockLifecycle defines the service methods needed by stock handlers.
// Satisfied by *service.LifecycleService.
type StockLifecycle interface {
	AdjustStock(ctx context.Context, actor service.Actor, req service.AdjustStockRequest) (*database.StockItem, error)
}

// StockHandler handles stock item endpoints.
type StockHandler struct {
	store     StockStore
	lifecycle StockLifecycle
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(store StockStore, lifecycle StockLifecycle) *StockHandler {
	return &StockHandler{store: store, lifecycle: lifecycle}
}

// RegisterRoutes registers stock endpoints on the given Chi router.
func (h *StockHandler) RegisterRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/low", h.ListLow)
		r.Get("/{id}/movements", h.ListMovements)
		r.Post("/{id}/adjust", h.Adjust)
	})
}

// --- Request / Response types ---

type adjustStockRequest struct {
	Quantity string `json:"quantity"`
	Reason   string `json:"reason"`
}

type stockItemResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	OnHand           string    `json:"on_hand"`
	ReorderThreshold string    `json:"reorder_threshold"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type stockMovementResponse struct {
	ID           uuid.UUID  `json:"id"`
	ItemID       uuid.UUID  `json:"item_id"`
	Kind         string     `json:"kind"`
	Quantity     string     `json:"quantity"`
	OnHandBefore string     `json:"on_hand_before"`
	OnHandAfter  string     `json:"on_hand_after"`
	Reason       *string    `json:"reason,omitempty"`
	ReferenceID  *uuid.UUID `json:"reference_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func dbStockItemToResponse(item database.StockItem) stockItemResponse {
	return stockItemResponse{
		ID:               item.ID,
		Name:             item.Name,
		OnHand:           numericToString(item.OnHand),
		ReorderThreshold: numericToString(item.ReorderThreshold),
		UpdatedAt:        item.UpdatedAt,
	}
}

func dbStockMovementToResponse(m database.StockMovement) stockMovementResponse {
	resp := stockMovementResponse{
		ID:           m.ID,
		ItemID:       m.ItemID,
		Kind:         m.Kind,
		Quantity:     numericToString(m.Quantity),
		OnHandBefore: numericToString(m.OnHandBefore),
		OnHandAfter:  numericToString(m.OnHandAfter),
		Reason:       textOrNil(m.Reason),
		CreatedAt:    m.CreatedAt,
	}
	if m.ReferenceID.Valid {
		ref := uuid.UUID(m.ReferenceID.Bytes)
		resp.ReferenceID = &ref
	}
	return resp
}

// --- Handlers ---

// List returns all stock items.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListStockItems(r.Context())
	if err != nil {
		respondServiceError(w, "list stock items", err)
		return
	}

	resp := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, dbStockItemToResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListLow returns stock items at or below their reorder threshold.
func (h *StockHandler) ListLow(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListLowStockItems(r.Context())
	if err != nil {
		respondServiceError(w, "list low stock items", err)
		return
	}

	resp := make([]stockItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, dbStockItemToResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMovements returns the movement journal for a stock item, newest first.
func (h *StockHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stock item ID"})
		return
	}

	limit := int32(50)
	offset := int32(0)

	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.ParseInt(l, 10, 32)
		if err != nil || parsed < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		if parsed > 100 {
			parsed = 100
		}
		limit = int32(parsed)
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		parsed, err := strconv.ParseInt(o, 10, 32)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid offset"})
			return
		}
		offset = int32(parsed)
	}

	movements, err := h.store.ListStockMovements(r.Context(), database.ListStockMovementsParams{
		ItemID: id,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(w, "list stock movements", err)
		return
	}

	resp := make([]stockMovementResponse, 0, len(movements))
	for _, m := range movements {
		resp = append(resp, dbStockMovementToResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Adjust applies a manual signed correction to a stock item's on-hand level.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stock item ID"})
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	item, err := h.lifecycle.AdjustStock(r.Context(), actorFromClaims(claims), service.AdjustStockRequest{
		ItemID:   id,
		Quantity: quantity,
		Reason:   req.Reason,
	})
	if err != nil {
		respondServiceError(w, "adjust stock", err)
		return
	}

	writeJSON(w, http.StatusOK, dbStockItemToResponse(*item))
}
