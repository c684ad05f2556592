package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// getPreBillForUpdate locks the order and checks it is parked at pre-bill.
func getPreBillForUpdate(ctx context.Context, store Store, id uuid.UUID) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if order.Status != enum.OrderStatusPreBill {
		return database.Order{}, ErrNotAPreBill
	}
	return order, nil
}

// ReopenPreBill puts a pre-billed order back on the table for further
// edits. The chosen payment method is discarded; lines, removal log,
// discount and totals come back untouched, and stock stays reserved.
func (s *LifecycleService) ReopenPreBill(ctx context.Context, actor Actor, id uuid.UUID) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapCloseTables); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := getPreBillForUpdate(ctx, store, id)
		if err != nil {
			return err
		}
		if _, err := store.ReopenPreBill(ctx, order.ID); err != nil {
			return fmt.Errorf("reopen pre-bill: %w", err)
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangePreBillPayment swaps the payment method on a parked pre-bill.
func (s *LifecycleService) ChangePreBillPayment(ctx context.Context, actor Actor, id uuid.UUID, paymentMethod string) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapCloseTables); err != nil {
		return nil, err
	}
	if !isValidPaymentMethod(paymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := getPreBillForUpdate(ctx, store, id)
		if err != nil {
			return err
		}
		if _, err := store.UpdateOrderPaymentMethod(ctx, database.UpdateOrderPaymentMethodParams{
			ID:            order.ID,
			PaymentMethod: paymentMethod,
		}); err != nil {
			return fmt.Errorf("update payment method: %w", err)
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PrintPreBill turns the parked pre-bill into a fiscal ticket under its
// already-chosen payment method, assigning the next ticket-series number.
func (s *LifecycleService) PrintPreBill(ctx context.Context, actor Actor, id uuid.UUID) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapCloseTables); err != nil {
		return nil, err
	}
	fiscalYear := int32(s.now().Year())

	var result *OrderResult
	var err error
	for attempt := 0; attempt < maxFiscalNumberRetries; attempt++ {
		err = s.withTx(ctx, func(store Store) error {
			order, err := getPreBillForUpdate(ctx, store, id)
			if err != nil {
				return err
			}
			if !order.PaymentMethod.Valid {
				return ErrInvalidPaymentMethod
			}
			seq, err := nextSequenceNumber(ctx, store, enum.SeriesTicket, fiscalYear)
			if err != nil {
				return err
			}
			if _, err := store.CloseOrder(ctx, database.CloseOrderParams{
				ID:             order.ID,
				Series:         enum.SeriesTicket,
				SequenceNumber: seq,
				FiscalYear:     fiscalYear,
				FiscalNumber:   FormatFiscalNumber(enum.SeriesTicket, fiscalYear, seq),
				PaymentMethod:  order.PaymentMethod.String,
			}); err != nil {
				return fmt.Errorf("close order: %w", err)
			}
			result, err = loadOrderResult(ctx, store, order.ID)
			return err
		})
		if err == nil || !isFiscalNumberConflict(err) {
			break
		}
	}
	if err != nil {
		if isFiscalNumberConflict(err) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateFiscalNumber, err)
		}
		return nil, err
	}
	return result, nil
}
