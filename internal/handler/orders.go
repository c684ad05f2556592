package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLifecycle defines the service methods needed by order handlers.
// Satisfied by *service.LifecycleService.
type OrderLifecycle interface {
	ConfirmOrder(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error)
	GetTableOrder(ctx context.Context, tableNumber string) (*service.OrderResult, error)
	RemoveLine(ctx context.Context, actor service.Actor, tableNumber string, lineID, ingredientID uuid.UUID) (*service.OrderResult, error)
	ApplyDiscount(ctx context.Context, actor service.Actor, tableNumber string, percent decimal.Decimal) (*service.OrderResult, error)
	MergeTables(ctx context.Context, actor service.Actor, primaryTable string, secondaryTables []string) (*service.OrderResult, error)
	Close(ctx context.Context, actor service.Actor, tableNumber, paymentMethod, mode string) (*service.OrderResult, error)
}

// OrderHandler handles table order endpoints.
type OrderHandler struct {
	lifecycle OrderLifecycle
	notifier  OrderNotifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(lifecycle OrderLifecycle, notifier OrderNotifier) *OrderHandler {
	return &OrderHandler{lifecycle: lifecycle, notifier: notifier}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tables/{table}/order", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Post("/lines", h.ConfirmLines)
		r.Delete("/lines/{lineID}", h.RemoveLine)
		r.Post("/discount", h.ApplyDiscount)
		r.Post("/merge", h.MergeTables)
		r.Post("/close", h.Close)
	})
}

// --- Request types ---

type confirmLinesRequest struct {
	Lines []service.LineInput `json:"lines"`
}

type applyDiscountRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type mergeTablesRequest struct {
	Tables []string `json:"tables"`
}

type closeOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
	Mode          string `json:"mode"`
}

// --- Handlers ---

// GetOrder returns the active order for a table.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")

	res, err := h.lifecycle.GetTableOrder(r.Context(), table)
	if err != nil {
		respondServiceError(w, "get table order", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

// ConfirmLines adds a batch of lines to the table's order, creating it if
// needed. The batch is applied atomically: if any line fails, none are added.
func (h *OrderHandler) ConfirmLines(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	claims := middleware.ClaimsFromContext(r.Context())

	var req confirmLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.ConfirmOrder(r.Context(), actorFromClaims(claims), service.ConfirmOrderRequest{
		TableNumber: table,
		Lines:       req.Lines,
	})
	if err != nil {
		respondServiceError(w, "confirm order lines", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// RemoveLine removes a whole line, or a single modification from it when the
// ingredient_id query parameter is set.
func (h *OrderHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	claims := middleware.ClaimsFromContext(r.Context())

	lineID, err := uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid line ID"})
		return
	}

	ingredientID := uuid.Nil
	if raw := r.URL.Query().Get("ingredient_id"); raw != "" {
		ingredientID, err = uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ingredient ID"})
			return
		}
	}

	res, err := h.lifecycle.RemoveLine(r.Context(), actorFromClaims(claims), table, lineID, ingredientID)
	if err != nil {
		respondServiceError(w, "remove order line", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// ApplyDiscount sets the order-level discount percentage.
func (h *OrderHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	claims := middleware.ClaimsFromContext(r.Context())

	var req applyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.ApplyDiscount(r.Context(), actorFromClaims(claims), table, req.Percent)
	if err != nil {
		respondServiceError(w, "apply discount", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// MergeTables folds the orders of the listed tables into this table's order.
func (h *OrderHandler) MergeTables(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	claims := middleware.ClaimsFromContext(r.Context())

	var req mergeTablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.MergeTables(r.Context(), actorFromClaims(claims), table, req.Tables)
	if err != nil {
		respondServiceError(w, "merge tables", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Close settles the table's order, either parking it as a pre-bill or issuing
// a fiscal ticket, depending on the requested mode.
func (h *OrderHandler) Close(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	claims := middleware.ClaimsFromContext(r.Context())

	var req closeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.Close(r.Context(), actorFromClaims(claims), table, req.PaymentMethod, req.Mode)
	if err != nil {
		respondServiceError(w, "close order", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.closed", resp)
	writeJSON(w, http.StatusOK, resp)
}
