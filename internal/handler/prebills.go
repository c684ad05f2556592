package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PreBillLifecycle defines the service methods needed by pre-bill handlers.
// Satisfied by *service.LifecycleService.
type PreBillLifecycle interface {
	ReopenPreBill(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderResult, error)
	ChangePreBillPayment(ctx context.Context, actor service.Actor, id uuid.UUID, paymentMethod string) (*service.OrderResult, error)
	PrintPreBill(ctx context.Context, actor service.Actor, id uuid.UUID) (*service.OrderResult, error)
}

// PreBillHandler handles pre-bill endpoints.
type PreBillHandler struct {
	lifecycle PreBillLifecycle
	notifier  OrderNotifier
}

// NewPreBillHandler creates a new PreBillHandler.
func NewPreBillHandler(lifecycle PreBillLifecycle, notifier OrderNotifier) *PreBillHandler {
	return &PreBillHandler{lifecycle: lifecycle, notifier: notifier}
}

// RegisterRoutes registers pre-bill endpoints on the given Chi router.
func (h *PreBillHandler) RegisterRoutes(r chi.Router) {
	r.Route("/prebills/{id}", func(r chi.Router) {
		r.Post("/reopen", h.Reopen)
		r.Post("/payment", h.ChangePayment)
		r.Post("/print", h.Print)
	})
}

type changePaymentRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// Reopen moves a parked pre-bill back to an open order.
func (h *PreBillHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pre-bill ID"})
		return
	}

	res, err := h.lifecycle.ReopenPreBill(r.Context(), actorFromClaims(claims), id)
	if err != nil {
		respondServiceError(w, "reopen pre-bill", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// ChangePayment updates the intended payment method on a parked pre-bill.
func (h *PreBillHandler) ChangePayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pre-bill ID"})
		return
	}

	var req changePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	res, err := h.lifecycle.ChangePreBillPayment(r.Context(), actorFromClaims(claims), id, req.PaymentMethod)
	if err != nil {
		respondServiceError(w, "change pre-bill payment", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.updated", resp)
	writeJSON(w, http.StatusOK, resp)
}

// Print converts the pre-bill into a fiscal ticket.
func (h *PreBillHandler) Print(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pre-bill ID"})
		return
	}

	res, err := h.lifecycle.PrintPreBill(r.Context(), actorFromClaims(claims), id)
	if err != nil {
		respondServiceError(w, "print pre-bill", err)
		return
	}

	resp := toOrderResponse(res)
	notifyOrder(h.notifier, "order.closed", resp)
	writeJSON(w, http.StatusOK, resp)
}
