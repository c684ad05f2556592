package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// VenueStore defines the database methods needed by venue handlers.
// Satisfied by *database.Queries.
type VenueStore interface {
	GetVenue(ctx context.Context) (database.Venue, error)
}

// VenueLifecycle defines the service methods needed by venue handlers.
// Satisfied by *service.LifecycleService.
type VenueLifecycle interface {
	ConfigureVenue(ctx context.Context, actor service.Actor, name, taxID, address, currencyCode string) (*database.Venue, error)
}

// VenueHandler handles venue configuration endpoints.
type VenueHandler struct {
	store     VenueStore
	lifecycle VenueLifecycle
}

// NewVenueHandler creates a new VenueHandler.
func NewVenueHandler(store VenueStore, lifecycle VenueLifecycle) *VenueHandler {
	return &VenueHandler{store: store, lifecycle: lifecycle}
}

// RegisterRoutes registers venue endpoints on the given Chi router.
func (h *VenueHandler) RegisterRoutes(r chi.Router) {
	r.Get("/venue", h.Get)
	r.Put("/venue", h.Update)
}

type configureVenueRequest struct {
	Name         string `json:"name"`
	TaxID        string `json:"tax_id"`
	Address      string `json:"address"`
	CurrencyCode string `json:"currency_code"`
}

type venueResponse struct {
	Name         string    `json:"name"`
	TaxID        string    `json:"tax_id"`
	Address      *string   `json:"address,omitempty"`
	CurrencyCode string    `json:"currency_code"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func dbVenueToResponse(v database.Venue) venueResponse {
	return venueResponse{
		Name:         v.Name,
		TaxID:        v.TaxID,
		Address:      textOrNil(v.Address),
		CurrencyCode: v.CurrencyCode,
		UpdatedAt:    v.UpdatedAt,
	}
}

// Get returns the venue's fiscal identity.
func (h *VenueHandler) Get(w http.ResponseWriter, r *http.Request) {
	venue, err := h.store.GetVenue(r.Context())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "venue not configured"})
			return
		}
		respondServiceError(w, "get venue", err)
		return
	}

	writeJSON(w, http.StatusOK, dbVenueToResponse(venue))
}

// Update creates or replaces the venue's fiscal identity. There is a single
// venue row; repeated updates overwrite it.
func (h *VenueHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())

	var req configureVenueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	venue, err := h.lifecycle.ConfigureVenue(r.Context(), actorFromClaims(claims), req.Name, req.TaxID, req.Address, req.CurrencyCode)
	if err != nil {
		respondServiceError(w, "configure venue", err)
		return
	}

	writeJSON(w, http.StatusOK, dbVenueToResponse(*venue))
}
