package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, table_number, server_id, status, discount_percent, subtotal, total,
payment_method, series, sequence_number, fiscal_year, fiscal_number,
customer_name, void_reason, opened_at, closed_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.TableNumber, &o.ServerID, &o.Status, &o.DiscountPercent,
		&o.Subtotal, &o.Total, &o.PaymentMethod, &o.Series, &o.SequenceNumber,
		&o.FiscalYear, &o.FiscalNumber, &o.CustomerName, &o.VoidReason,
		&o.OpenedAt, &o.ClosedAt, &o.UpdatedAt,
	)
	return o, err
}

const createOrder = `
INSERT INTO orders (table_number, server_id, status, discount_percent, subtotal, total)
VALUES ($1, $2, 'OPEN', $3, $4, $5)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	TableNumber     string
	ServerID        uuid.UUID
	DiscountPercent pgtype.Numeric
	Subtotal        pgtype.Numeric
	Total           pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.TableNumber, arg.ServerID, arg.DiscountPercent, arg.Subtotal, arg.Total))
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const getActiveOrderByTable = `
SELECT ` + orderColumns + `
FROM orders
WHERE table_number = $1 AND status IN ('OPEN', 'PREBILL')
`

func (q *Queries) GetActiveOrderByTable(ctx context.Context, tableNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getActiveOrderByTable, tableNumber))
}

const getActiveOrderByTableForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE table_number = $1 AND status IN ('OPEN', 'PREBILL')
FOR UPDATE
`

// GetActiveOrderByTableForUpdate locks the table's active order row for the
// duration of the transaction, linearizing concurrent mutations per table.
func (q *Queries) GetActiveOrderByTableForUpdate(ctx context.Context, tableNumber string) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getActiveOrderByTableForUpdate, tableNumber))
}

const updateOrderTotals = `
UPDATE orders
SET discount_percent = $2, subtotal = $3, total = $4, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalsParams struct {
	ID              uuid.UUID
	DiscountPercent pgtype.Numeric
	Subtotal        pgtype.Numeric
	Total           pgtype.Numeric
}

func (q *Queries) UpdateOrderTotals(ctx context.Context, arg UpdateOrderTotalsParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotals,
		arg.ID, arg.DiscountPercent, arg.Subtotal, arg.Total))
}

const markOrderPreBill = `
UPDATE orders
SET status = 'PREBILL', payment_method = $2, updated_at = now()
WHERE id = $1 AND status = 'OPEN'
RETURNING ` + orderColumns

type MarkOrderPreBillParams struct {
	ID            uuid.UUID
	PaymentMethod string
}

func (q *Queries) MarkOrderPreBill(ctx context.Context, arg MarkOrderPreBillParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, markOrderPreBill, arg.ID, arg.PaymentMethod))
}

const reopenPreBill = `
UPDATE orders
SET status = 'OPEN', payment_method = NULL, updated_at = now()
WHERE id = $1 AND status = 'PREBILL'
RETURNING ` + orderColumns

func (q *Queries) ReopenPreBill(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, reopenPreBill, id))
}

const updateOrderPaymentMethod = `
UPDATE orders
SET payment_method = $2, updated_at = now()
WHERE id = $1 AND status IN ('PREBILL', 'CLOSED')
RETURNING ` + orderColumns

type UpdateOrderPaymentMethodParams struct {
	ID            uuid.UUID
	PaymentMethod string
}

func (q *Queries) UpdateOrderPaymentMethod(ctx context.Context, arg UpdateOrderPaymentMethodParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderPaymentMethod, arg.ID, arg.PaymentMethod))
}

const closeOrder = `
UPDATE orders
SET status = 'CLOSED', series = $2, sequence_number = $3, fiscal_year = $4,
    fiscal_number = $5, payment_method = $6, closed_at = now(), updated_at = now()
WHERE id = $1 AND status IN ('OPEN', 'PREBILL')
RETURNING ` + orderColumns

type CloseOrderParams struct {
	ID             uuid.UUID
	Series         string
	SequenceNumber int32
	FiscalYear     int32
	FiscalNumber   string
	PaymentMethod  string
}

// CloseOrder assigns the fiscal identity. The unique index on
// (series, sequence_number, fiscal_year) is the last line of defense against
// two concurrent closings reading the same max sequence.
func (q *Queries) CloseOrder(ctx context.Context, arg CloseOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, closeOrder,
		arg.ID, arg.Series, arg.SequenceNumber, arg.FiscalYear, arg.FiscalNumber, arg.PaymentMethod))
}

const voidOrder = `
UPDATE orders
SET status = 'VOIDED', void_reason = $2, updated_at = now()
WHERE id = $1 AND status = 'CLOSED'
RETURNING ` + orderColumns

type VoidOrderParams struct {
	ID         uuid.UUID
	VoidReason string
}

func (q *Queries) VoidOrder(ctx context.Context, arg VoidOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, voidOrder, arg.ID, arg.VoidReason))
}

const reissueOrderAsInvoice = `
UPDATE orders
SET series = $2, sequence_number = $3, fiscal_number = $4, customer_name = $5, updated_at = now()
WHERE id = $1 AND status = 'CLOSED'
RETURNING ` + orderColumns

type ReissueOrderAsInvoiceParams struct {
	ID             uuid.UUID
	Series         string
	SequenceNumber int32
	FiscalNumber   string
	CustomerName   string
}

// ReissueOrderAsInvoice mutates the ticket row in place to its invoice
// identity; the original simplified-ticket number is given up, not kept.
func (q *Queries) ReissueOrderAsInvoice(ctx context.Context, arg ReissueOrderAsInvoiceParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, reissueOrderAsInvoice,
		arg.ID, arg.Series, arg.SequenceNumber, arg.FiscalNumber, arg.CustomerName))
}

const deleteOrder = `
DELETE FROM orders WHERE id = $1
`

func (q *Queries) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrder, id)
	return err
}

const getMaxSequenceNumber = `
SELECT COALESCE(MAX(sequence_number), 0)::int
FROM orders
WHERE series = $1 AND fiscal_year = $2
`

type GetMaxSequenceNumberParams struct {
	Series     string
	FiscalYear int32
}

func (q *Queries) GetMaxSequenceNumber(ctx context.Context, arg GetMaxSequenceNumberParams) (int32, error) {
	row := q.db.QueryRow(ctx, getMaxSequenceNumber, arg.Series, arg.FiscalYear)
	var max int32
	err := row.Scan(&max)
	return max, err
}

const listTickets = `
SELECT ` + orderColumns + `
FROM orders
WHERE status IN ('CLOSED', 'VOIDED')
  AND ($1::text IS NULL OR series = $1)
  AND ($2::int IS NULL OR fiscal_year = $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY closed_at DESC
LIMIT $4 OFFSET $5
`

type ListTicketsParams struct {
	Series     pgtype.Text
	FiscalYear pgtype.Int4
	Status     pgtype.Text
	Limit      int32
	Offset     int32
}

func (q *Queries) ListTickets(ctx context.Context, arg ListTicketsParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listTickets, arg.Series, arg.FiscalYear, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
