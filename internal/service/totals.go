package service

import (
	"context"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// computeTotals applies the billing formula to the loaded lines:
// subtotal sums unit_price*qty plus each extra's extra_cost*extra_qty,
// total applies the percentage discount and rounds to cents.
func computeTotals(lines []LineResult, discountPercent decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, lr := range lines {
		lineAmount := numericToDecimal(lr.Line.UnitPrice).Mul(decimal.NewFromInt32(lr.Line.Quantity))
		for _, e := range lr.Extras {
			lineAmount = lineAmount.Add(numericToDecimal(e.ExtraCost).Mul(decimal.NewFromInt32(e.Quantity)))
		}
		subtotal = subtotal.Add(lineAmount)
	}
	subtotal = subtotal.Round(2)

	factor := decimal.NewFromInt(1).Sub(discountPercent.Div(decimal.NewFromInt(100)))
	total = subtotal.Mul(factor).Round(2)
	return subtotal, total
}

// recomputeOrderTotals reloads the order's lines and persists fresh totals.
// Called after every structural mutation.
func recomputeOrderTotals(ctx context.Context, store Store, orderID uuid.UUID, discountPercent decimal.Decimal) (database.Order, error) {
	lines, err := loadLineResults(ctx, store, orderID)
	if err != nil {
		return database.Order{}, err
	}
	subtotal, total := computeTotals(lines, discountPercent)
	order, err := store.UpdateOrderTotals(ctx, database.UpdateOrderTotalsParams{
		ID:              orderID,
		DiscountPercent: decimalToNumeric(discountPercent),
		Subtotal:        decimalToNumeric(subtotal),
		Total:           decimalToNumeric(total),
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("update order totals: %w", err)
	}
	return order, nil
}
