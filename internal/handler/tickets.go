package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// TicketStore defines the database methods needed by ticket handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type TicketStore interface {
	ListTickets(ctx context.Context, arg database.ListTicketsParams) ([]database.Order, error)
}

// TicketLifecycle defines the service methods needed by ticket handlers.
// Satisfied by *service.LifecycleService.
type TicketLifecycle interface {
	GetTicket(ctx context.Context, id uuid.UUID) (*service.OrderResult, error)
	VoidTicket(ctx context.Context, actor service.Actor, id uuid.UUID, reason string) (*service.OrderResult, error)
	ReissueAsInvoice(ctx context.Context, actor service.Actor, id uuid.UUID, customerName string) (*service.OrderResult, error)
	ReopenTicketAsOrder(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderResult, error)
}

// TicketHandler handles fiscal ticket endpoints.
type TicketHandler struct {
	store     TicketStore
	lifecycle TicketLifecycle
	notifier  OrderNotifier
}

// NewTicketHandler creates a new TicketHandler.
func NewTicketHandler(store TicketStore, lifecycle TicketLifecycle, notifier OrderNotifier) *TicketHandler {
	return &TicketHandler{store: store, lifecycle: lifecycle, notifier: notifier}
}

// RegisterRoutes registers ticket endpoints on the given Chi router.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/void", h.Void)
		r.Post("/{id}/invoice", h.ReissueAsInvoice)
		r.Post("/{id}/reopen", h.Reopen)
	})
}

type voidTicketRequest struct {
	Reason string `json:"reason"`
}

type reissueInvoiceRequest struct {
	CustomerName string `json:"customer_name"`
}

// List returns issued tickets, optionally filtered by series, fiscal year and
// status. Supports limit/offset pagination.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
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

	params := database.ListTicketsParams{Limit: limit, Offset: offset}
	if series := r.URL.Query().Get("series"); series != "" {
		params.Series = pgtype.Text{String: series, Valid: true}
	}
	if year := r.URL.Query().Get("year"); year != "" {
		parsed, err := strconv.ParseInt(year, 10, 32)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid year"})
			return
		}
		params.FiscalYear = pgtype.Int4{Int32: int32(parsed), Valid: true}
	}
	if status := r.URL.Query().Get("status"); status != "" {
		params.Status = pgtype.Text{String: status, Valid: true}
	}

	tickets, err := h.store.ListTickets(r.Context(), params)
	if err != nil {
		respondServiceError(w, "list tickets", err)
		return
	}

	resp := make([]orderResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, dbOrderToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns a single ticket with its lines.
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket ID"})
		return
	}

	res, err := h.lifecycle.GetTicket(r.Context(), id)
	if err != nil {
		respondServiceError(w, "get ticket", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

// Void marks a ticket as voided. The reason is mandatory and stock is never
// returned.
func (h *TicketHandler) Void(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket ID"})
		return
	}

	var req voidTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.VoidTicket(r.Context(), actorFromClaims(claims), id, req.Reason)
	if err != nil {
		respondServiceError(w, "void ticket", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

// ReissueAsInvoice upgrades a simplified ticket to a full invoice with the
// customer's fiscal details.
func (h *TicketHandler) ReissueAsInvoice(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket ID"})
		return
	}

	var req reissueInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.ReissueAsInvoice(r.Context(), actorFromClaims(claims), id, req.CustomerName)
	if err != nil {
		respondServiceError(w, "reissue ticket as invoice", err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(res))
}

// Reopen voids the ticket and recreates its contents as a fresh open order on
// the same table.
func (h *TicketHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket ID"})
		return
	}

	res, err := h.lifecycle.ReopenTicketAsOrder(r.Context(), actorFromClaims(claims), id)
	if err != nil {
		respondServiceError(w, "reopen ticket", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}
