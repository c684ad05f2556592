package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const getProductForOrder = `
SELECT id, name, price, track_stock
FROM products
WHERE id = $1 AND active
`

type GetProductForOrderRow struct {
	ID         uuid.UUID
	Name       string
	Price      pgtype.Numeric
	TrackStock bool
}

func (q *Queries) GetProductForOrder(ctx context.Context, id uuid.UUID) (GetProductForOrderRow, error) {
	row := q.db.QueryRow(ctx, getProductForOrder, id)
	var p GetProductForOrderRow
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.TrackStock)
	return p, err
}

const listProducts = `
SELECT id, name, price, cost, track_stock, active
FROM products
WHERE active
ORDER BY name
`

func (q *Queries) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := q.db.Query(ctx, listProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Cost, &p.TrackStock, &p.Active); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const listProductIngredients = `
SELECT pi.ingredient_id, i.name, pi.quantity
FROM product_ingredients pi
JOIN ingredients i ON i.id = pi.ingredient_id
WHERE pi.product_id = $1
ORDER BY i.name
`

type ListProductIngredientsRow struct {
	IngredientID uuid.UUID
	Name         string
	Quantity     pgtype.Numeric
}

// ListProductIngredients returns the recipe cascade for one unit of a
// composite product.
func (q *Queries) ListProductIngredients(ctx context.Context, productID uuid.UUID) ([]ListProductIngredientsRow, error) {
	rows, err := q.db.Query(ctx, listProductIngredients, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListProductIngredientsRow
	for rows.Next() {
		var r ListProductIngredientsRow
		if err := rows.Scan(&r.IngredientID, &r.Name, &r.Quantity); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const getIngredient = `
SELECT id, name, extra_cost, cost
FROM ingredients
WHERE id = $1
`

func (q *Queries) GetIngredient(ctx context.Context, id uuid.UUID) (Ingredient, error) {
	row := q.db.QueryRow(ctx, getIngredient, id)
	var i Ingredient
	err := row.Scan(&i.ID, &i.Name, &i.ExtraCost, &i.Cost)
	return i, err
}
