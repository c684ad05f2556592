package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Errors returned by the lifecycle service.
var (
	ErrEmptyLines            = errors.New("lines are required")
	ErrInvalidQuantity       = errors.New("quantity must be > 0")
	ErrInvalidProductID      = errors.New("invalid product_id")
	ErrInvalidIngredientID   = errors.New("invalid ingredient_id")
	ErrProductNotFound       = errors.New("product not found")
	ErrIngredientNotFound    = errors.New("ingredient not found on line")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrTableNotFound         = errors.New("no active order for table")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderNotOpen          = errors.New("order is not open")
	ErrLineNotFound          = errors.New("line not found")
	ErrItemNotFound          = errors.New("stock item not found")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrNotAPreBill           = errors.New("order is not a pre-bill")
	ErrNotATicket            = errors.New("order is not a closed ticket")
	ErrAlreadyVoided         = errors.New("ticket is already voided")
	ErrAlreadyInvoice        = errors.New("ticket is already an invoice")
	ErrInvalidDiscount       = errors.New("discount must be between 0 and 100")
	ErrInvalidPaymentMethod  = errors.New("invalid payment_method")
	ErrInvalidCloseMode      = errors.New("invalid close mode")
	ErrMissingVoidReason     = errors.New("void reason is required")
	ErrMissingCustomer       = errors.New("customer is required for an invoice")
	ErrUnauthorized          = errors.New("caller lacks the required capability")
	ErrTableOccupied         = errors.New("table already has an active order")
	ErrMergeSelf             = errors.New("cannot merge a table into itself")
	ErrMissingVenueIdentity  = errors.New("venue name and tax ID are required")
	ErrDuplicateFiscalNumber = errors.New("fiscal number already assigned")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the lifecycle service mutates through.
// Satisfied by *database.Queries (pool- or tx-backed).
type Store interface {
	// Venue
	GetVenue(ctx context.Context) (database.Venue, error)
	UpsertVenue(ctx context.Context, arg database.UpsertVenueParams) (database.Venue, error)

	// Catalog (read-only)
	GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error)
	ListProductIngredients(ctx context.Context, productID uuid.UUID) ([]database.ListProductIngredientsRow, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error)

	// Stock ledger
	GetStockItem(ctx context.Context, id uuid.UUID) (database.StockItem, error)
	DecrementStock(ctx context.Context, arg database.DecrementStockParams) (database.StockItem, error)
	IncrementStock(ctx context.Context, arg database.IncrementStockParams) (database.StockItem, error)
	CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error)

	// Orders
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetActiveOrderByTable(ctx context.Context, tableNumber string) (database.Order, error)
	GetActiveOrderByTableForUpdate(ctx context.Context, tableNumber string) (database.Order, error)
	UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error)
	MarkOrderPreBill(ctx context.Context, arg database.MarkOrderPreBillParams) (database.Order, error)
	ReopenPreBill(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderPaymentMethod(ctx context.Context, arg database.UpdateOrderPaymentMethodParams) (database.Order, error)
	CloseOrder(ctx context.Context, arg database.CloseOrderParams) (database.Order, error)
	VoidOrder(ctx context.Context, arg database.VoidOrderParams) (database.Order, error)
	ReissueOrderAsInvoice(ctx context.Context, arg database.ReissueOrderAsInvoiceParams) (database.Order, error)
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	GetMaxSequenceNumber(ctx context.Context, arg database.GetMaxSequenceNumberParams) (int32, error)

	// Lines
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error)
	ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error)
	UpdateOrderLineQuantity(ctx context.Context, arg database.UpdateOrderLineQuantityParams) (database.OrderLine, error)
	MoveOrderLine(ctx context.Context, arg database.MoveOrderLineParams) (database.OrderLine, error)
	DeleteOrderLine(ctx context.Context, id uuid.UUID) error
	CreateOrderLineExtra(ctx context.Context, arg database.CreateOrderLineExtraParams) (database.OrderLineExtra, error)
	ListOrderLineExtras(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineExtra, error)
	DeleteOrderLineExtra(ctx context.Context, arg database.DeleteOrderLineExtraParams) (database.OrderLineExtra, error)
	CreateOrderLineExclusion(ctx context.Context, arg database.CreateOrderLineExclusionParams) (database.OrderLineExclusion, error)
	ListOrderLineExclusions(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineExclusion, error)
	DeleteOrderLineExclusion(ctx context.Context, arg database.DeleteOrderLineExclusionParams) (database.OrderLineExclusion, error)
	UpsertOrderLineReservation(ctx context.Context, arg database.UpsertOrderLineReservationParams) (database.OrderLineReservation, error)
	ListOrderLineReservations(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineReservation, error)
	DecrementOrderLineReservation(ctx context.Context, arg database.DecrementOrderLineReservationParams) (database.OrderLineReservation, error)
	DeleteOrderLineReservations(ctx context.Context, lineID uuid.UUID) error
	CreateRemovedLine(ctx context.Context, arg database.CreateRemovedLineParams) (database.RemovedLine, error)
	ListRemovedLines(ctx context.Context, orderID uuid.UUID) ([]database.RemovedLine, error)
	ReassignRemovedLines(ctx context.Context, arg database.ReassignRemovedLinesParams) error
}

// NewStore creates a Store from a DBTX (pool or tx).
type NewStore func(db database.DBTX) Store

// Actor identifies the caller of a lifecycle operation together with its
// capability set, as carried in its token claims.
type Actor struct {
	UserID       uuid.UUID
	Capabilities []enum.Capability
}

func (a Actor) can(cap enum.Capability) bool {
	for _, have := range a.Capabilities {
		if have == cap {
			return true
		}
	}
	return false
}

func requireCapability(a Actor, cap enum.Capability) error {
	if !a.can(cap) {
		return fmt.Errorf("%s: %w", cap, ErrUnauthorized)
	}
	return nil
}

// LifecycleService orchestrates the order lifecycle: every public method is
// one all-or-nothing transaction over orders and the stock ledger.
type LifecycleService struct {
	pool     TxBeginner
	newStore NewStore
	now      func() time.Time
}

// NewLifecycleService creates a new LifecycleService.
func NewLifecycleService(pool TxBeginner, newStore NewStore) *LifecycleService {
	return &LifecycleService{pool: pool, newStore: newStore, now: time.Now}
}

// withTx runs fn inside a transaction; any error rolls everything back,
// including stock decrements already applied earlier in the same call.
func (s *LifecycleService) withTx(ctx context.Context, fn func(store Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(s.newStore(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Result assembly ---

// LineResult is a line with its customizations loaded.
type LineResult struct {
	Line       database.OrderLine
	Extras     []database.OrderLineExtra
	Exclusions []database.OrderLineExclusion
}

// OrderResult is the full order with lines and the removal log.
type OrderResult struct {
	Order        database.Order
	Lines        []LineResult
	RemovedLines []database.RemovedLine
}

func loadLineResults(ctx context.Context, store Store, orderID uuid.UUID) ([]LineResult, error) {
	lines, err := store.ListOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	results := make([]LineResult, len(lines))
	for i, line := range lines {
		extras, err := store.ListOrderLineExtras(ctx, line.ID)
		if err != nil {
			return nil, fmt.Errorf("list line extras: %w", err)
		}
		exclusions, err := store.ListOrderLineExclusions(ctx, line.ID)
		if err != nil {
			return nil, fmt.Errorf("list line exclusions: %w", err)
		}
		results[i] = LineResult{Line: line, Extras: extras, Exclusions: exclusions}
	}
	return results, nil
}

func loadOrderResult(ctx context.Context, store Store, orderID uuid.UUID) (*OrderResult, error) {
	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	lines, err := loadLineResults(ctx, store, orderID)
	if err != nil {
		return nil, err
	}
	removed, err := store.ListRemovedLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list removed lines: %w", err)
	}
	return &OrderResult{Order: order, Lines: lines, RemovedLines: removed}, nil
}

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodTransfer:
		return true
	}
	return false
}
