package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type Venue struct {
	Name         string
	TaxID        string
	Address      pgtype.Text
	CurrencyCode string
	UpdatedAt    time.Time
}

type User struct {
	ID             uuid.UUID
	FullName       string
	Email          string
	HashedPassword string
	Role           string
	CreatedAt      time.Time
}

type Product struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	Cost       pgtype.Numeric
	TrackStock bool
	Active     bool
}

type Ingredient struct {
	ID        uuid.UUID
	Name      string
	ExtraCost pgtype.Numeric
	Cost      pgtype.Numeric
}

type StockItem struct {
	ID               uuid.UUID
	Name             string
	OnHand           pgtype.Numeric
	ReorderThreshold pgtype.Numeric
	UpdatedAt        time.Time
}

type StockMovement struct {
	ID           uuid.UUID
	ItemID       uuid.UUID
	Kind         string
	Quantity     pgtype.Numeric
	OnHandBefore pgtype.Numeric
	OnHandAfter  pgtype.Numeric
	Reason       pgtype.Text
	ReferenceID  pgtype.UUID
	CreatedAt    time.Time
}

// Order carries the whole lifecycle: an open table tab (OPEN), a pre-bill
// awaiting payment confirmation (PREBILL), and the fiscal ticket
// (CLOSED/VOIDED) once a number has been assigned.
type Order struct {
	ID              uuid.UUID
	TableNumber     string
	ServerID        uuid.UUID
	Status          string
	DiscountPercent pgtype.Numeric
	Subtotal        pgtype.Numeric
	Total           pgtype.Numeric
	PaymentMethod   pgtype.Text
	Series          pgtype.Text
	SequenceNumber  pgtype.Int4
	FiscalYear      pgtype.Int4
	FiscalNumber    pgtype.Text
	CustomerName    pgtype.Text
	VoidReason      pgtype.Text
	OpenedAt        time.Time
	ClosedAt        pgtype.Timestamptz
	UpdatedAt       time.Time
}

type OrderLine struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Notes       pgtype.Text
	AddedAt     time.Time
}

type OrderLineExtra struct {
	ID             uuid.UUID
	LineID         uuid.UUID
	IngredientID   uuid.UUID
	IngredientName string
	ExtraCost      pgtype.Numeric
	Quantity       int32
}

type OrderLineExclusion struct {
	LineID         uuid.UUID
	IngredientID   uuid.UUID
	IngredientName string
}

// OrderLineReservation is the outstanding stock reserved for one line and
// one ledger item, captured at reserve time. Releases read these rows, never
// the current catalog recipe.
type OrderLineReservation struct {
	LineID   uuid.UUID
	ItemID   uuid.UUID
	Quantity pgtype.Numeric
}

type RemovedLine struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Notes       pgtype.Text
	Exclusions  []byte
	Extras      []byte
	AddedAt     time.Time
	RemovedAt   time.Time
	RemovedBy   uuid.UUID
}
