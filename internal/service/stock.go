package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// stockLedger wraps a tx-backed store with reserve/release semantics.
// Items without a ledger row are untracked: reservation silently skips them
// and records nothing, so the matching release is a no-op too.
type stockLedger struct {
	store Store
}

// reserve takes qty off hand and journals a SALE movement. Reports whether
// the item is tracked; untracked items reserve nothing.
func (l *stockLedger) reserve(ctx context.Context, itemID uuid.UUID, qty decimal.Decimal, ref uuid.UUID) (bool, error) {
	item, err := l.store.GetStockItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("get stock item: %w", err)
	}

	after, err := l.store.DecrementStock(ctx, database.DecrementStockParams{
		ID:       itemID,
		Quantity: decimalToNumeric(qty),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", item.Name, ErrInsufficientStock)
		}
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	if err := l.journal(ctx, after, enum.MovementSale, qty.Neg(), "", ref); err != nil {
		return false, err
	}
	return true, nil
}

// release puts qty back on hand and journals a RETURN movement. A missing
// ledger row means the item was never tracked; nothing to release.
func (l *stockLedger) release(ctx context.Context, itemID uuid.UUID, qty decimal.Decimal, ref uuid.UUID) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	_, err := l.store.GetStockItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get stock item: %w", err)
	}

	after, err := l.store.IncrementStock(ctx, database.IncrementStockParams{
		ID:       itemID,
		Quantity: decimalToNumeric(qty),
	})
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	return l.journal(ctx, after, enum.MovementReturn, qty, "", ref)
}

func (l *stockLedger) journal(ctx context.Context, after database.StockItem, kind string, delta decimal.Decimal, reason string, ref uuid.UUID) error {
	onHandAfter := numericToDecimal(after.OnHand)
	params := database.CreateStockMovementParams{
		ItemID:       after.ID,
		Kind:         kind,
		Quantity:     decimalToNumeric(delta),
		OnHandBefore: decimalToNumeric(onHandAfter.Sub(delta)),
		OnHandAfter:  after.OnHand,
	}
	if reason != "" {
		params.Reason = pgtype.Text{String: reason, Valid: true}
	}
	if ref != uuid.Nil {
		params.ReferenceID = pgtype.UUID{Bytes: ref, Valid: true}
	}
	if _, err := l.store.CreateStockMovement(ctx, params); err != nil {
		return fmt.Errorf("create stock movement: %w", err)
	}
	return nil
}

// AdjustStockRequest is a manual on-hand correction (waste, recount,
// delivery), journaled as an ADJUSTMENT.
type AdjustStockRequest struct {
	ItemID   uuid.UUID
	Quantity decimal.Decimal // signed delta
	Reason   string
}

// AdjustStock applies a manual correction to a ledger entry. Negative
// adjustments cannot take on-hand below zero.
func (s *LifecycleService) AdjustStock(ctx context.Context, actor Actor, req AdjustStockRequest) (*database.StockItem, error) {
	if err := requireCapability(actor, enum.CapAdjustStock); err != nil {
		return nil, err
	}
	if req.Quantity.IsZero() {
		return nil, ErrInvalidQuantity
	}
	reason := strings.TrimSpace(req.Reason)

	var item database.StockItem
	err := s.withTx(ctx, func(store Store) error {
		if _, err := store.GetStockItem(ctx, req.ItemID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrItemNotFound
			}
			return fmt.Errorf("get stock item: %w", err)
		}

		var err error
		if req.Quantity.IsNegative() {
			item, err = store.DecrementStock(ctx, database.DecrementStockParams{
				ID:       req.ItemID,
				Quantity: decimalToNumeric(req.Quantity.Neg()),
			})
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInsufficientStock
			}
		} else {
			item, err = store.IncrementStock(ctx, database.IncrementStockParams{
				ID:       req.ItemID,
				Quantity: decimalToNumeric(req.Quantity),
			})
		}
		if err != nil {
			return fmt.Errorf("adjust stock: %w", err)
		}

		ledger := &stockLedger{store: store}
		return ledger.journal(ctx, item, enum.MovementAdjustment, req.Quantity, reason, uuid.Nil)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
