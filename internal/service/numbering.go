package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/jackc/pgx/v5/pgconn"
)

// maxFiscalNumberRetries bounds how often a closing is retried after losing
// the sequence-number race. A collision past this is a persistence fault,
// not a normal race.
const maxFiscalNumberRetries = 3

// FormatFiscalNumber renders the printable fiscal identity, e.g. B/2026/000042.
func FormatFiscalNumber(series string, year int32, sequence int32) string {
	return fmt.Sprintf("%s/%d/%06d", series, year, sequence)
}

// nextSequenceNumber reads the highest assigned number for the series/year
// and proposes the next one. The read alone is racy: the unique index on
// (series, sequence_number, fiscal_year) catches the loser, who retries.
func nextSequenceNumber(ctx context.Context, store Store, series string, fiscalYear int32) (int32, error) {
	max, err := store.GetMaxSequenceNumber(ctx, database.GetMaxSequenceNumberParams{
		Series:     series,
		FiscalYear: fiscalYear,
	})
	if err != nil {
		return 0, fmt.Errorf("get max sequence number: %w", err)
	}
	return max + 1, nil
}

// isFiscalNumberConflict reports whether err is the unique-violation raised
// when two closings were assigned the same (series, sequence, year).
func isFiscalNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "idx_orders_fiscal_number"
	}
	return false
}
