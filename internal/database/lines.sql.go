package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const lineColumns = `id, order_id, product_id, product_name, quantity, unit_price, notes, added_at`

func scanLine(row interface{ Scan(dest ...any) error }) (OrderLine, error) {
	var l OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Notes, &l.AddedAt)
	return l, err
}

const createOrderLine = `
INSERT INTO order_lines (order_id, product_id, product_name, quantity, unit_price, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + lineColumns

type CreateOrderLineParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Notes       pgtype.Text
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	return scanLine(q.db.QueryRow(ctx, createOrderLine,
		arg.OrderID, arg.ProductID, arg.ProductName, arg.Quantity, arg.UnitPrice, arg.Notes))
}

const getOrderLine = `
SELECT ` + lineColumns + `
FROM order_lines
WHERE id = $1
`

func (q *Queries) GetOrderLine(ctx context.Context, id uuid.UUID) (OrderLine, error) {
	return scanLine(q.db.QueryRow(ctx, getOrderLine, id))
}

const listOrderLines = `
SELECT ` + lineColumns + `
FROM order_lines
WHERE order_id = $1
ORDER BY added_at, id
`

func (q *Queries) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listOrderLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLine
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const updateOrderLineQuantity = `
UPDATE order_lines
SET quantity = $2
WHERE id = $1
RETURNING ` + lineColumns

type UpdateOrderLineQuantityParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) UpdateOrderLineQuantity(ctx context.Context, arg UpdateOrderLineQuantityParams) (OrderLine, error) {
	return scanLine(q.db.QueryRow(ctx, updateOrderLineQuantity, arg.ID, arg.Quantity))
}

const moveOrderLine = `
UPDATE order_lines
SET order_id = $2
WHERE id = $1
RETURNING ` + lineColumns

type MoveOrderLineParams struct {
	ID      uuid.UUID
	OrderID uuid.UUID
}

// MoveOrderLine reparents a line during a table merge; its extras,
// exclusions and reservations ride along via the line_id foreign keys.
func (q *Queries) MoveOrderLine(ctx context.Context, arg MoveOrderLineParams) (OrderLine, error) {
	return scanLine(q.db.QueryRow(ctx, moveOrderLine, arg.ID, arg.OrderID))
}

const deleteOrderLine = `
DELETE FROM order_lines WHERE id = $1
`

func (q *Queries) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderLine, id)
	return err
}

// --- Extras ---

const createOrderLineExtra = `
INSERT INTO order_line_extras (line_id, ingredient_id, ingredient_name, extra_cost, quantity)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, line_id, ingredient_id, ingredient_name, extra_cost, quantity
`

type CreateOrderLineExtraParams struct {
	LineID         uuid.UUID
	IngredientID   uuid.UUID
	IngredientName string
	ExtraCost      pgtype.Numeric
	Quantity       int32
}

func (q *Queries) CreateOrderLineExtra(ctx context.Context, arg CreateOrderLineExtraParams) (OrderLineExtra, error) {
	row := q.db.QueryRow(ctx, createOrderLineExtra,
		arg.LineID, arg.IngredientID, arg.IngredientName, arg.ExtraCost, arg.Quantity)
	var e OrderLineExtra
	err := row.Scan(&e.ID, &e.LineID, &e.IngredientID, &e.IngredientName, &e.ExtraCost, &e.Quantity)
	return e, err
}

const listOrderLineExtras = `
SELECT id, line_id, ingredient_id, ingredient_name, extra_cost, quantity
FROM order_line_extras
WHERE line_id = $1
ORDER BY ingredient_name
`

func (q *Queries) ListOrderLineExtras(ctx context.Context, lineID uuid.UUID) ([]OrderLineExtra, error) {
	rows, err := q.db.Query(ctx, listOrderLineExtras, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLineExtra
	for rows.Next() {
		var e OrderLineExtra
		if err := rows.Scan(&e.ID, &e.LineID, &e.IngredientID, &e.IngredientName, &e.ExtraCost, &e.Quantity); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const deleteOrderLineExtra = `
DELETE FROM order_line_extras
WHERE line_id = $1 AND ingredient_id = $2
RETURNING id, line_id, ingredient_id, ingredient_name, extra_cost, quantity
`

type DeleteOrderLineExtraParams struct {
	LineID       uuid.UUID
	IngredientID uuid.UUID
}

func (q *Queries) DeleteOrderLineExtra(ctx context.Context, arg DeleteOrderLineExtraParams) (OrderLineExtra, error) {
	row := q.db.QueryRow(ctx, deleteOrderLineExtra, arg.LineID, arg.IngredientID)
	var e OrderLineExtra
	err := row.Scan(&e.ID, &e.LineID, &e.IngredientID, &e.IngredientName, &e.ExtraCost, &e.Quantity)
	return e, err
}

// --- Exclusions ---

const createOrderLineExclusion = `
INSERT INTO order_line_exclusions (line_id, ingredient_id, ingredient_name)
VALUES ($1, $2, $3)
RETURNING line_id, ingredient_id, ingredient_name
`

type CreateOrderLineExclusionParams struct {
	LineID         uuid.UUID
	IngredientID   uuid.UUID
	IngredientName string
}

func (q *Queries) CreateOrderLineExclusion(ctx context.Context, arg CreateOrderLineExclusionParams) (OrderLineExclusion, error) {
	row := q.db.QueryRow(ctx, createOrderLineExclusion, arg.LineID, arg.IngredientID, arg.IngredientName)
	var e OrderLineExclusion
	err := row.Scan(&e.LineID, &e.IngredientID, &e.IngredientName)
	return e, err
}

const listOrderLineExclusions = `
SELECT line_id, ingredient_id, ingredient_name
FROM order_line_exclusions
WHERE line_id = $1
ORDER BY ingredient_name
`

func (q *Queries) ListOrderLineExclusions(ctx context.Context, lineID uuid.UUID) ([]OrderLineExclusion, error) {
	rows, err := q.db.Query(ctx, listOrderLineExclusions, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLineExclusion
	for rows.Next() {
		var e OrderLineExclusion
		if err := rows.Scan(&e.LineID, &e.IngredientID, &e.IngredientName); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const deleteOrderLineExclusion = `
DELETE FROM order_line_exclusions
WHERE line_id = $1 AND ingredient_id = $2
RETURNING line_id, ingredient_id, ingredient_name
`

type DeleteOrderLineExclusionParams struct {
	LineID       uuid.UUID
	IngredientID uuid.UUID
}

func (q *Queries) DeleteOrderLineExclusion(ctx context.Context, arg DeleteOrderLineExclusionParams) (OrderLineExclusion, error) {
	row := q.db.QueryRow(ctx, deleteOrderLineExclusion, arg.LineID, arg.IngredientID)
	var e OrderLineExclusion
	err := row.Scan(&e.LineID, &e.IngredientID, &e.IngredientName)
	return e, err
}

// --- Reservations ---

const upsertOrderLineReservation = `
INSERT INTO order_line_reservations (line_id, item_id, quantity)
VALUES ($1, $2, $3)
ON CONFLICT (line_id, item_id) DO UPDATE
SET quantity = order_line_reservations.quantity + EXCLUDED.quantity
RETURNING line_id, item_id, quantity
`

type UpsertOrderLineReservationParams struct {
	LineID   uuid.UUID
	ItemID   uuid.UUID
	Quantity pgtype.Numeric
}

func (q *Queries) UpsertOrderLineReservation(ctx context.Context, arg UpsertOrderLineReservationParams) (OrderLineReservation, error) {
	row := q.db.QueryRow(ctx, upsertOrderLineReservation, arg.LineID, arg.ItemID, arg.Quantity)
	var r OrderLineReservation
	err := row.Scan(&r.LineID, &r.ItemID, &r.Quantity)
	return r, err
}

const listOrderLineReservations = `
SELECT line_id, item_id, quantity
FROM order_line_reservations
WHERE line_id = $1
ORDER BY item_id
`

func (q *Queries) ListOrderLineReservations(ctx context.Context, lineID uuid.UUID) ([]OrderLineReservation, error) {
	rows, err := q.db.Query(ctx, listOrderLineReservations, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderLineReservation
	for rows.Next() {
		var r OrderLineReservation
		if err := rows.Scan(&r.LineID, &r.ItemID, &r.Quantity); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const decrementOrderLineReservation = `
UPDATE order_line_reservations
SET quantity = quantity - $3
WHERE line_id = $1 AND item_id = $2
RETURNING line_id, item_id, quantity
`

type DecrementOrderLineReservationParams struct {
	LineID   uuid.UUID
	ItemID   uuid.UUID
	Quantity pgtype.Numeric
}

func (q *Queries) DecrementOrderLineReservation(ctx context.Context, arg DecrementOrderLineReservationParams) (OrderLineReservation, error) {
	row := q.db.QueryRow(ctx, decrementOrderLineReservation, arg.LineID, arg.ItemID, arg.Quantity)
	var r OrderLineReservation
	err := row.Scan(&r.LineID, &r.ItemID, &r.Quantity)
	return r, err
}

const deleteOrderLineReservations = `
DELETE FROM order_line_reservations WHERE line_id = $1
`

func (q *Queries) DeleteOrderLineReservations(ctx context.Context, lineID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderLineReservations, lineID)
	return err
}

// --- Removed lines ---

const removedLineColumns = `id, order_id, product_id, product_name, quantity, unit_price, notes,
exclusions, extras, added_at, removed_at, removed_by`

const createRemovedLine = `
INSERT INTO removed_lines (order_id, product_id, product_name, quantity, unit_price, notes,
	exclusions, extras, added_at, removed_at, removed_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), $10)
RETURNING ` + removedLineColumns

type CreateRemovedLineParams struct {
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int32
	UnitPrice   pgtype.Numeric
	Notes       pgtype.Text
	Exclusions  []byte
	Extras      []byte
	AddedAt     pgtype.Timestamptz
	RemovedBy   uuid.UUID
}

func (q *Queries) CreateRemovedLine(ctx context.Context, arg CreateRemovedLineParams) (RemovedLine, error) {
	row := q.db.QueryRow(ctx, createRemovedLine,
		arg.OrderID, arg.ProductID, arg.ProductName, arg.Quantity, arg.UnitPrice,
		arg.Notes, arg.Exclusions, arg.Extras, arg.AddedAt, arg.RemovedBy)
	var r RemovedLine
	err := row.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.ProductName, &r.Quantity,
		&r.UnitPrice, &r.Notes, &r.Exclusions, &r.Extras, &r.AddedAt, &r.RemovedAt, &r.RemovedBy)
	return r, err
}

const listRemovedLines = `
SELECT ` + removedLineColumns + `
FROM removed_lines
WHERE order_id = $1
ORDER BY removed_at, id
`

func (q *Queries) ListRemovedLines(ctx context.Context, orderID uuid.UUID) ([]RemovedLine, error) {
	rows, err := q.db.Query(ctx, listRemovedLines, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RemovedLine
	for rows.Next() {
		var r RemovedLine
		if err := rows.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.ProductName, &r.Quantity,
			&r.UnitPrice, &r.Notes, &r.Exclusions, &r.Extras, &r.AddedAt, &r.RemovedAt, &r.RemovedBy); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const reassignRemovedLines = `
UPDATE removed_lines SET order_id = $2 WHERE order_id = $1
`

type ReassignRemovedLinesParams struct {
	FromOrderID uuid.UUID
	ToOrderID   uuid.UUID
}

// ReassignRemovedLines carries a merged table's removal log into the
// surviving order so the audit trail is never orphaned.
func (q *Queries) ReassignRemovedLines(ctx context.Context, arg ReassignRemovedLinesParams) error {
	_, err := q.db.Exec(ctx, reassignRemovedLines, arg.FromOrderID, arg.ToOrderID)
	return err
}
