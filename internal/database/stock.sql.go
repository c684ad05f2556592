package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getStockItem = `
SELECT id, name, on_hand, reorder_threshold, updated_at
FROM stock_items
WHERE id = $1
`

func (q *Queries) GetStockItem(ctx context.Context, id uuid.UUID) (StockItem, error) {
	row := q.db.QueryRow(ctx, getStockItem, id)
	var s StockItem
	err := row.Scan(&s.ID, &s.Name, &s.OnHand, &s.ReorderThreshold, &s.UpdatedAt)
	return s, err
}

const listStockItems = `
SELECT id, name, on_hand, reorder_threshold, updated_at
FROM stock_items
ORDER BY name
`

func (q *Queries) ListStockItems(ctx context.Context) ([]StockItem, error) {
	rows, err := q.db.Query(ctx, listStockItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockItem
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.ID, &s.Name, &s.OnHand, &s.ReorderThreshold, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const listLowStockItems = `
SELECT id, name, on_hand, reorder_threshold, updated_at
FROM stock_items
WHERE on_hand <= reorder_threshold
ORDER BY name
`

func (q *Queries) ListLowStockItems(ctx context.Context) ([]StockItem, error) {
	rows, err := q.db.Query(ctx, listLowStockItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockItem
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.ID, &s.Name, &s.OnHand, &s.ReorderThreshold, &s.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const decrementStock = `
UPDATE stock_items
SET on_hand = on_hand - $2, updated_at = now()
WHERE id = $1 AND on_hand >= $2
RETURNING id, name, on_hand, reorder_threshold, updated_at
`

type DecrementStockParams struct {
	ID       uuid.UUID
	Quantity pgtype.Numeric
}

// DecrementStock atomically takes quantity off hand. The on_hand >= quantity
// guard makes it race-free: pgx.ErrNoRows means insufficient stock (or an
// untracked item) and nothing was changed.
func (q *Queries) DecrementStock(ctx context.Context, arg DecrementStockParams) (StockItem, error) {
	row := q.db.QueryRow(ctx, decrementStock, arg.ID, arg.Quantity)
	var s StockItem
	err := row.Scan(&s.ID, &s.Name, &s.OnHand, &s.ReorderThreshold, &s.UpdatedAt)
	return s, err
}

const incrementStock = `
UPDATE stock_items
SET on_hand = on_hand + $2, updated_at = now()
WHERE id = $1
RETURNING id, name, on_hand, reorder_threshold, updated_at
`

type IncrementStockParams struct {
	ID       uuid.UUID
	Quantity pgtype.Numeric
}

// IncrementStock puts quantity back on hand. No upper bound: returns may
// exceed a stale cap after catalog edits.
func (q *Queries) IncrementStock(ctx context.Context, arg IncrementStockParams) (StockItem, error) {
	row := q.db.QueryRow(ctx, incrementStock, arg.ID, arg.Quantity)
	var s StockItem
	err := row.Scan(&s.ID, &s.Name, &s.OnHand, &s.ReorderThreshold, &s.UpdatedAt)
	return s, err
}

const createStockMovement = `
INSERT INTO stock_movements (item_id, kind, quantity, on_hand_before, on_hand_after, reason, reference_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, item_id, kind, quantity, on_hand_before, on_hand_after, reason, reference_id, created_at
`

type CreateStockMovementParams struct {
	ItemID       uuid.UUID
	Kind         string
	Quantity     pgtype.Numeric
	OnHandBefore pgtype.Numeric
	OnHandAfter  pgtype.Numeric
	Reason       pgtype.Text
	ReferenceID  pgtype.UUID
}

func (q *Queries) CreateStockMovement(ctx context.Context, arg CreateStockMovementParams) (StockMovement, error) {
	row := q.db.QueryRow(ctx, createStockMovement,
		arg.ItemID, arg.Kind, arg.Quantity, arg.OnHandBefore, arg.OnHandAfter, arg.Reason, arg.ReferenceID)
	var m StockMovement
	err := row.Scan(&m.ID, &m.ItemID, &m.Kind, &m.Quantity, &m.OnHandBefore, &m.OnHandAfter, &m.Reason, &m.ReferenceID, &m.CreatedAt)
	return m, err
}

const listStockMovements = `
SELECT id, item_id, kind, quantity, on_hand_before, on_hand_after, reason, reference_id, created_at
FROM stock_movements
WHERE item_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

type ListStockMovementsParams struct {
	ItemID uuid.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListStockMovements(ctx context.Context, arg ListStockMovementsParams) ([]StockMovement, error) {
	rows, err := q.db.Query(ctx, listStockMovements, arg.ItemID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Kind, &m.Quantity, &m.OnHandBefore, &m.OnHandAfter, &m.Reason, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
