package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getVenue = `
SELECT name, tax_id, address, currency_code, updated_at
FROM venues
WHERE singleton
`

func (q *Queries) GetVenue(ctx context.Context) (Venue, error) {
	row := q.db.QueryRow(ctx, getVenue)
	var v Venue
	err := row.Scan(&v.Name, &v.TaxID, &v.Address, &v.CurrencyCode, &v.UpdatedAt)
	return v, err
}

const upsertVenue = `
INSERT INTO venues (singleton, name, tax_id, address, currency_code, updated_at)
VALUES (true, $1, $2, $3, $4, now())
ON CONFLICT (singleton) DO UPDATE
SET name = EXCLUDED.name,
    tax_id = EXCLUDED.tax_id,
    address = EXCLUDED.address,
    currency_code = EXCLUDED.currency_code,
    updated_at = now()
RETURNING name, tax_id, address, currency_code, updated_at
`

type UpsertVenueParams struct {
	Name         string
	TaxID        string
	Address      pgtype.Text
	CurrencyCode string
}

// UpsertVenue creates or replaces the single venue configuration row.
// Idempotent: repeated calls with the same input converge on one row.
func (q *Queries) UpsertVenue(ctx context.Context, arg UpsertVenueParams) (Venue, error) {
	row := q.db.QueryRow(ctx, upsertVenue, arg.Name, arg.TaxID, arg.Address, arg.CurrencyCode)
	var v Venue
	err := row.Scan(&v.Name, &v.TaxID, &v.Address, &v.CurrencyCode, &v.UpdatedAt)
	return v, err
}
