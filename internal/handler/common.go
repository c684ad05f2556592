package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/service"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: encode response: %v", err)
	}
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0"
	}
	s, ok := val.(string)
	if !ok {
		return "0"
	}
	return s
}

func textOrNil(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func int4OrNil(i pgtype.Int4) *int32 {
	if !i.Valid {
		return nil
	}
	return &i.Int32
}

func timeOrNil(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func actorFromClaims(c *auth.Claims) service.Actor {
	return service.Actor{UserID: c.UserID, Capabilities: c.Capabilities}
}

// OrderNotifier pushes order events to connected floor clients.
// Satisfied by *ws.Hub; nil disables notifications.
type OrderNotifier interface {
	BroadcastToTable(table string, eventType string, payload json.RawMessage)
}

func notifyOrder(n OrderNotifier, eventType string, resp orderResponse) {
	if n == nil {
		return
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	n.BroadcastToTable(resp.TableNumber, eventType, payload)
}

// --- Shared response shapes ---

type extraResponse struct {
	IngredientID   uuid.UUID `json:"ingredient_id"`
	IngredientName string    `json:"ingredient_name"`
	ExtraCost      string    `json:"extra_cost"`
	Quantity       int32     `json:"quantity"`
}

type exclusionResponse struct {
	IngredientID   uuid.UUID `json:"ingredient_id"`
	IngredientName string    `json:"ingredient_name"`
}

type lineResponse struct {
	ID          uuid.UUID           `json:"id"`
	ProductID   uuid.UUID           `json:"product_id"`
	ProductName string              `json:"product_name"`
	Quantity    int32               `json:"quantity"`
	UnitPrice   string              `json:"unit_price"`
	Notes       *string             `json:"notes"`
	AddedAt     time.Time           `json:"added_at"`
	Exclusions  []exclusionResponse `json:"exclusions"`
	Extras      []extraResponse     `json:"extras"`
}

type removedLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int32           `json:"quantity"`
	UnitPrice   string          `json:"unit_price"`
	Exclusions  json.RawMessage `json:"exclusions"`
	Extras      json.RawMessage `json:"extras"`
	AddedAt     time.Time       `json:"added_at"`
	RemovedAt   time.Time       `json:"removed_at"`
	RemovedBy   uuid.UUID       `json:"removed_by"`
}

type orderResponse struct {
	ID              uuid.UUID             `json:"id"`
	TableNumber     string                `json:"table_number"`
	ServerID        uuid.UUID             `json:"server_id"`
	Status          string                `json:"status"`
	DiscountPercent string                `json:"discount_percent"`
	Subtotal        string                `json:"subtotal"`
	Total           string                `json:"total"`
	PaymentMethod   *string               `json:"payment_method"`
	Series          *string               `json:"series"`
	SequenceNumber  *int32                `json:"sequence_number"`
	FiscalYear      *int32                `json:"fiscal_year"`
	FiscalNumber    *string               `json:"fiscal_number"`
	CustomerName    *string               `json:"customer_name"`
	VoidReason      *string               `json:"void_reason"`
	OpenedAt        time.Time             `json:"opened_at"`
	ClosedAt        *time.Time            `json:"closed_at"`
	Lines           []lineResponse        `json:"lines"`
	RemovedLines    []removedLineResponse `json:"removed_lines"`
}

func dbOrderToResponse(o database.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		TableNumber:     o.TableNumber,
		ServerID:        o.ServerID,
		Status:          o.Status,
		DiscountPercent: numericToString(o.DiscountPercent),
		Subtotal:        numericToString(o.Subtotal),
		Total:           numericToString(o.Total),
		PaymentMethod:   textOrNil(o.PaymentMethod),
		Series:          textOrNil(o.Series),
		SequenceNumber:  int4OrNil(o.SequenceNumber),
		FiscalYear:      int4OrNil(o.FiscalYear),
		FiscalNumber:    textOrNil(o.FiscalNumber),
		CustomerName:    textOrNil(o.CustomerName),
		VoidReason:      textOrNil(o.VoidReason),
		OpenedAt:        o.OpenedAt,
		ClosedAt:        timeOrNil(o.ClosedAt),
		Lines:           []lineResponse{},
		RemovedLines:    []removedLineResponse{},
	}
}

func toOrderResponse(res *service.OrderResult) orderResponse {
	resp := dbOrderToResponse(res.Order)
	for _, lr := range res.Lines {
		line := lineResponse{
			ID:          lr.Line.ID,
			ProductID:   lr.Line.ProductID,
			ProductName: lr.Line.ProductName,
			Quantity:    lr.Line.Quantity,
			UnitPrice:   numericToString(lr.Line.UnitPrice),
			Notes:       textOrNil(lr.Line.Notes),
			AddedAt:     lr.Line.AddedAt,
			Exclusions:  []exclusionResponse{},
			Extras:      []extraResponse{},
		}
		for _, e := range lr.Exclusions {
			line.Exclusions = append(line.Exclusions, exclusionResponse{
				IngredientID:   e.IngredientID,
				IngredientName: e.IngredientName,
			})
		}
		for _, e := range lr.Extras {
			line.Extras = append(line.Extras, extraResponse{
				IngredientID:   e.IngredientID,
				IngredientName: e.IngredientName,
				ExtraCost:      numericToString(e.ExtraCost),
				Quantity:       e.Quantity,
			})
		}
		resp.Lines = append(resp.Lines, line)
	}
	for _, r := range res.RemovedLines {
		resp.RemovedLines = append(resp.RemovedLines, removedLineResponse{
			ID:          r.ID,
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			UnitPrice:   numericToString(r.UnitPrice),
			Exclusions:  json.RawMessage(r.Exclusions),
			Extras:      json.RawMessage(r.Extras),
			AddedAt:     r.AddedAt,
			RemovedAt:   r.RemovedAt,
			RemovedBy:   r.RemovedBy,
		})
	}
	return resp
}

// --- Error mapping ---

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyLines) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidIngredientID) ||
		errors.Is(err, service.ErrInvalidDiscount) ||
		errors.Is(err, service.ErrInvalidPaymentMethod) ||
		errors.Is(err, service.ErrInvalidCloseMode) ||
		errors.Is(err, service.ErrMissingVoidReason) ||
		errors.Is(err, service.ErrMissingCustomer) ||
		errors.Is(err, service.ErrMergeSelf) ||
		errors.Is(err, service.ErrMissingVenueIdentity)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, service.ErrTableNotFound) ||
		errors.Is(err, service.ErrOrderNotFound) ||
		errors.Is(err, service.ErrLineNotFound) ||
		errors.Is(err, service.ErrItemNotFound) ||
		errors.Is(err, service.ErrTicketNotFound) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrIngredientNotFound)
}

func isConflictError(err error) bool {
	return errors.Is(err, service.ErrInsufficientStock) ||
		errors.Is(err, service.ErrOrderNotOpen) ||
		errors.Is(err, service.ErrNotAPreBill) ||
		errors.Is(err, service.ErrNotATicket) ||
		errors.Is(err, service.ErrAlreadyVoided) ||
		errors.Is(err, service.ErrAlreadyInvoice) ||
		errors.Is(err, service.ErrTableOccupied)
}

// respondServiceError maps service errors onto HTTP statuses; anything
// unrecognized is logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case isNotFoundError(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case isConflictError(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrDuplicateFiscalNumber):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "fiscal numbering contention, please retry"})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
