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
)

const reopenVoidReason = "table reopened"

// getTicketForUpdate locks a closed or voided order and rejects anything
// that never got a fiscal number.
func getTicketForUpdate(ctx context.Context, store Store, id uuid.UUID) (database.Order, error) {
	order, err := store.GetOrderForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrTicketNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	switch order.Status {
	case enum.OrderStatusClosed, enum.OrderStatusVoided:
		return order, nil
	default:
		return database.Order{}, ErrNotATicket
	}
}

// VoidTicket flips a valid ticket to VOIDED with the given reason. The row
// stays queryable for audit and its stock is not returned, the goods
// already left the kitchen.
func (s *LifecycleService) VoidTicket(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapVoidTickets); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingVoidReason
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := getTicketForUpdate(ctx, store, id)
		if err != nil {
			return err
		}
		if order.Status == enum.OrderStatusVoided {
			return ErrAlreadyVoided
		}
		if _, err := store.VoidOrder(ctx, database.VoidOrderParams{
			ID:         order.ID,
			VoidReason: reason,
		}); err != nil {
			return fmt.Errorf("void order: %w", err)
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReissueAsInvoice upgrades a simplified ticket to a named invoice: the row
// is renumbered in place under the invoice series for the same fiscal year,
// the old ticket number is given up.
func (s *LifecycleService) ReissueAsInvoice(ctx context.Context, actor Actor, id uuid.UUID, customerName string) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapCloseTables); err != nil {
		return nil, err
	}
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		return nil, ErrMissingCustomer
	}

	var result *OrderResult
	var err error
	for attempt := 0; attempt < maxFiscalNumberRetries; attempt++ {
		err = s.withTx(ctx, func(store Store) error {
			order, err := getTicketForUpdate(ctx, store, id)
			if err != nil {
				return err
			}
			if order.Status == enum.OrderStatusVoided {
				return ErrAlreadyVoided
			}
			if order.Series.Valid && order.Series.String == enum.SeriesInvoice {
				return ErrAlreadyInvoice
			}

			seq, err := nextSequenceNumber(ctx, store, enum.SeriesInvoice, order.FiscalYear.Int32)
			if err != nil {
				return err
			}
			if _, err := store.ReissueOrderAsInvoice(ctx, database.ReissueOrderAsInvoiceParams{
				ID:             order.ID,
				Series:         enum.SeriesInvoice,
				SequenceNumber: seq,
				FiscalNumber:   FormatFiscalNumber(enum.SeriesInvoice, order.FiscalYear.Int32, seq),
				CustomerName:   customerName,
			}); err != nil {
				return fmt.Errorf("reissue as invoice: %w", err)
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

// ReopenTicketAsOrder voids the ticket and seeds a fresh open order on the
// same table with the ticket's lines, customizations, discount and totals.
// No stock moves in either direction, the goods were already consumed, so
// the new order's lines carry no reservations.
func (s *LifecycleService) ReopenTicketAsOrder(ctx context.Context, actor Actor, id uuid.UUID) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapVoidTickets); err != nil {
		return nil, err
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		ticket, err := getTicketForUpdate(ctx, store, id)
		if err != nil {
			return err
		}
		if ticket.Status == enum.OrderStatusVoided {
			return ErrAlreadyVoided
		}

		_, err = store.GetActiveOrderByTableForUpdate(ctx, ticket.TableNumber)
		if err == nil {
			return ErrTableOccupied
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("get active order: %w", err)
		}

		if _, err := store.VoidOrder(ctx, database.VoidOrderParams{
			ID:         ticket.ID,
			VoidReason: reopenVoidReason,
		}); err != nil {
			return fmt.Errorf("void order: %w", err)
		}

		reopened, err := store.CreateOrder(ctx, database.CreateOrderParams{
			TableNumber:     ticket.TableNumber,
			ServerID:        actor.UserID,
			DiscountPercent: ticket.DiscountPercent,
			Subtotal:        ticket.Subtotal,
			Total:           ticket.Total,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		lines, err := loadLineResults(ctx, store, ticket.ID)
		if err != nil {
			return err
		}
		for _, lr := range lines {
			line, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
				OrderID:     reopened.ID,
				ProductID:   lr.Line.ProductID,
				ProductName: lr.Line.ProductName,
				Quantity:    lr.Line.Quantity,
				UnitPrice:   lr.Line.UnitPrice,
				Notes:       lr.Line.Notes,
			})
			if err != nil {
				return fmt.Errorf("copy order line: %w", err)
			}
			for _, e := range lr.Exclusions {
				if _, err := store.CreateOrderLineExclusion(ctx, database.CreateOrderLineExclusionParams{
					LineID:         line.ID,
					IngredientID:   e.IngredientID,
					IngredientName: e.IngredientName,
				}); err != nil {
					return fmt.Errorf("copy line exclusion: %w", err)
				}
			}
			for _, e := range lr.Extras {
				if _, err := store.CreateOrderLineExtra(ctx, database.CreateOrderLineExtraParams{
					LineID:         line.ID,
					IngredientID:   e.IngredientID,
					IngredientName: e.IngredientName,
					ExtraCost:      e.ExtraCost,
					Quantity:       e.Quantity,
				}); err != nil {
					return fmt.Errorf("copy line extra: %w", err)
				}
			}
		}

		result, err = loadOrderResult(ctx, store, reopened.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetTicket loads one fiscal ticket with its lines and removal log.
func (s *LifecycleService) GetTicket(ctx context.Context, id uuid.UUID) (*OrderResult, error) {
	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := store.GetOrder(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTicketNotFound
			}
			return fmt.Errorf("get order: %w", err)
		}
		switch order.Status {
		case enum.OrderStatusClosed, enum.OrderStatusVoided:
		default:
			return ErrNotATicket
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ConfigureVenue idempotently upserts the single venue configuration row
// that fiscal tickets print under.
func (s *LifecycleService) ConfigureVenue(ctx context.Context, actor Actor, name, taxID, address, currencyCode string) (*database.Venue, error) {
	if err := requireCapability(actor, enum.CapManageVenue); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	taxID = strings.TrimSpace(taxID)
	if name == "" || taxID == "" {
		return nil, ErrMissingVenueIdentity
	}
	if currencyCode == "" {
		currencyCode = "EUR"
	}

	var venue database.Venue
	err := s.withTx(ctx, func(store Store) error {
		var addr pgtype.Text
		if address != "" {
			addr = pgtype.Text{String: address, Valid: true}
		}
		var err error
		venue, err = store.UpsertVenue(ctx, database.UpsertVenueParams{
			Name:         name,
			TaxID:        taxID,
			Address:      addr,
			CurrencyCode: currencyCode,
		})
		if err != nil {
			return fmt.Errorf("upsert venue: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &venue, nil
}
