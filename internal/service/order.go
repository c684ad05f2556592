package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// ConfirmOrderRequest is a batch of lines submitted for one table.
type ConfirmOrderRequest struct {
	TableNumber string      `json:"table_number"`
	Lines       []LineInput `json:"lines"`
}

// ConfirmOrder finds or creates the table's open order and applies the
// submitted lines, reserving stock for each before it is merged in. The
// batch is all-or-nothing: a reservation failure on any line rolls back
// every line of the call, including stock already taken for earlier lines.
func (s *LifecycleService) ConfirmOrder(ctx context.Context, actor Actor, req ConfirmOrderRequest) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapTakeOrders); err != nil {
		return nil, err
	}
	if len(req.Lines) == 0 {
		return nil, ErrEmptyLines
	}
	for i, in := range req.Lines {
		if in.ProductID == uuid.Nil {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidProductID)
		}
		if in.Quantity < 1 {
			return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
		}
		for _, e := range in.Extras {
			if e.IngredientID == uuid.Nil {
				return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidIngredientID)
			}
			if e.Quantity < 1 {
				return nil, fmt.Errorf("line[%d]: %w", i, ErrInvalidQuantity)
			}
		}
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := store.GetActiveOrderByTableForUpdate(ctx, req.TableNumber)
		if errors.Is(err, pgx.ErrNoRows) {
			order, err = store.CreateOrder(ctx, database.CreateOrderParams{
				TableNumber:     req.TableNumber,
				ServerID:        actor.UserID,
				DiscountPercent: decimalToNumeric(decimal.Zero),
				Subtotal:        decimalToNumeric(decimal.Zero),
				Total:           decimalToNumeric(decimal.Zero),
			})
			if err != nil {
				return fmt.Errorf("create order: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("get active order: %w", err)
		}
		if order.Status != enum.OrderStatusOpen {
			return ErrOrderNotOpen
		}

		existing, err := loadLineResults(ctx, store, order.ID)
		if err != nil {
			return err
		}

		ledger := &stockLedger{store: store}
		for i, in := range req.Lines {
			existing, err = s.applyLine(ctx, store, ledger, order.ID, existing, in)
			if err != nil {
				return fmt.Errorf("line[%d]: %w", i, err)
			}
		}

		if _, err := recomputeOrderTotals(ctx, store, order.ID, numericToDecimal(order.DiscountPercent)); err != nil {
			return err
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyLine reserves stock for one submitted line and merges it into the
// order, collapsing into an existing line when the product and its
// ingredient-modification set match exactly.
func (s *LifecycleService) applyLine(ctx context.Context, store Store, ledger *stockLedger, orderID uuid.UUID, existing []LineResult, in LineInput) ([]LineResult, error) {
	product, err := store.GetProductForOrder(ctx, in.ProductID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	recipe, err := store.ListProductIngredients(ctx, product.ID)
	if err != nil {
		return nil, fmt.Errorf("list product ingredients: %w", err)
	}

	extras := make([]database.Ingredient, len(in.Extras))
	for i, e := range in.Extras {
		ing, err := store.GetIngredient(ctx, e.IngredientID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrIngredientNotFound
			}
			return nil, fmt.Errorf("get ingredient: %w", err)
		}
		extras[i] = ing
	}
	exclusions := make([]database.Ingredient, len(in.Exclusions))
	for i, id := range in.Exclusions {
		ing, err := store.GetIngredient(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrIngredientNotFound
			}
			return nil, fmt.Errorf("get ingredient: %w", err)
		}
		exclusions[i] = ing
	}

	if target := findMergeTarget(existing, in); target != nil {
		line, err := store.UpdateOrderLineQuantity(ctx, database.UpdateOrderLineQuantityParams{
			ID:       target.Line.ID,
			Quantity: target.Line.Quantity + in.Quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("update line quantity: %w", err)
		}
		target.Line = line
		if err := s.reserveForLine(ctx, store, ledger, line.ID, product, recipe, in); err != nil {
			return nil, err
		}
		return existing, nil
	}

	var notes pgtype.Text
	if in.Notes != "" {
		notes = pgtype.Text{String: in.Notes, Valid: true}
	}
	line, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    in.Quantity,
		UnitPrice:   product.Price,
		Notes:       notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create order line: %w", err)
	}

	lr := LineResult{Line: line}
	for _, ing := range exclusions {
		excl, err := store.CreateOrderLineExclusion(ctx, database.CreateOrderLineExclusionParams{
			LineID:         line.ID,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create line exclusion: %w", err)
		}
		lr.Exclusions = append(lr.Exclusions, excl)
	}
	for i, ing := range extras {
		extra, err := store.CreateOrderLineExtra(ctx, database.CreateOrderLineExtraParams{
			LineID:         line.ID,
			IngredientID:   ing.ID,
			IngredientName: ing.Name,
			ExtraCost:      ing.ExtraCost,
			Quantity:       in.Extras[i].Quantity,
		})
		if err != nil {
			return nil, fmt.Errorf("create line extra: %w", err)
		}
		lr.Extras = append(lr.Extras, extra)
	}

	if err := s.reserveForLine(ctx, store, ledger, line.ID, product, recipe, in); err != nil {
		return nil, err
	}
	return append(existing, lr), nil
}

// reserveForLine takes stock for in.Quantity units of the product: the
// product itself when it is ledger-tracked, its full recipe cascade, and
// every extra ingredient. Exclusions do not shrink the cascade. Each tracked
// reservation is recorded against the line so removal releases exactly what
// was taken, regardless of later catalog edits.
func (s *LifecycleService) reserveForLine(ctx context.Context, store Store, ledger *stockLedger, lineID uuid.UUID, product database.GetProductForOrderRow, recipe []database.ListProductIngredientsRow, in LineInput) error {
	qty := decimal.NewFromInt32(in.Quantity)

	recordReservation := func(itemID uuid.UUID, amount decimal.Decimal) error {
		tracked, err := ledger.reserve(ctx, itemID, amount, lineID)
		if err != nil {
			return err
		}
		if !tracked {
			return nil
		}
		_, err = store.UpsertOrderLineReservation(ctx, database.UpsertOrderLineReservationParams{
			LineID:   lineID,
			ItemID:   itemID,
			Quantity: decimalToNumeric(amount),
		})
		if err != nil {
			return fmt.Errorf("record reservation: %w", err)
		}
		return nil
	}

	if product.TrackStock {
		if err := recordReservation(product.ID, qty); err != nil {
			return err
		}
	}
	for _, r := range recipe {
		need := numericToDecimal(r.Quantity).Mul(qty)
		if err := recordReservation(r.IngredientID, need); err != nil {
			return err
		}
	}
	for _, e := range in.Extras {
		need := decimal.NewFromInt32(e.Quantity).Mul(qty)
		if err := recordReservation(e.IngredientID, need); err != nil {
			return err
		}
	}
	return nil
}

// RemoveLine removes a customization or the whole line. A zero ingredientID
// removes the whole line, which needs the elevated line-removal capability,
// releases everything the line reserved, and logs the line for audit.
// With an ingredientID set, an exclusion is lifted (no stock effect) or,
// failing that, an extra is dropped and its stock returned.
func (s *LifecycleService) RemoveLine(ctx context.Context, actor Actor, tableNumber string, lineID, ingredientID uuid.UUID) (*OrderResult, error) {
	if ingredientID == uuid.Nil {
		if err := requireCapability(actor, enum.CapRemoveLines); err != nil {
			return nil, err
		}
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := store.GetActiveOrderByTableForUpdate(ctx, tableNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTableNotFound
			}
			return fmt.Errorf("get active order: %w", err)
		}
		if order.Status != enum.OrderStatusOpen {
			return ErrOrderNotOpen
		}

		line, err := store.GetOrderLine(ctx, lineID)
		if err != nil || line.OrderID != order.ID {
			if err == nil || errors.Is(err, pgx.ErrNoRows) {
				return ErrLineNotFound
			}
			return fmt.Errorf("get order line: %w", err)
		}

		if ingredientID != uuid.Nil {
			err = s.removeLineIngredient(ctx, store, line, ingredientID)
		} else {
			err = s.removeWholeLine(ctx, store, actor, line)
		}
		if err != nil {
			return err
		}

		if _, err := recomputeOrderTotals(ctx, store, order.ID, numericToDecimal(order.DiscountPercent)); err != nil {
			return err
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// removeLineIngredient drops one exclusion or extra from a line. Exclusions
// come first: lifting one never touches stock because the full recipe was
// reserved regardless. An extra returns extraQty*lineQty to the ledger and
// shrinks the line's reservation by the same amount.
func (s *LifecycleService) removeLineIngredient(ctx context.Context, store Store, line database.OrderLine, ingredientID uuid.UUID) error {
	_, err := store.DeleteOrderLineExclusion(ctx, database.DeleteOrderLineExclusionParams{
		LineID:       line.ID,
		IngredientID: ingredientID,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("delete line exclusion: %w", err)
	}

	extra, err := store.DeleteOrderLineExtra(ctx, database.DeleteOrderLineExtraParams{
		LineID:       line.ID,
		IngredientID: ingredientID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrIngredientNotFound
		}
		return fmt.Errorf("delete line extra: %w", err)
	}

	release := decimal.NewFromInt32(extra.Quantity).Mul(decimal.NewFromInt32(line.Quantity))
	ledger := &stockLedger{store: store}
	if err := ledger.release(ctx, ingredientID, release, line.ID); err != nil {
		return err
	}
	if _, err := store.DecrementOrderLineReservation(ctx, database.DecrementOrderLineReservationParams{
		LineID:   line.ID,
		ItemID:   ingredientID,
		Quantity: decimalToNumeric(release),
	}); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("decrement reservation: %w", err)
	}
	return nil
}

// removeWholeLine releases every reservation recorded for the line and moves
// it to the append-only removal log. Releases read the recorded rows, not
// the current catalog cascade, so a recipe edited after the line was added
// cannot skew what comes back.
func (s *LifecycleService) removeWholeLine(ctx context.Context, store Store, actor Actor, line database.OrderLine) error {
	reservations, err := store.ListOrderLineReservations(ctx, line.ID)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}
	ledger := &stockLedger{store: store}
	for _, r := range reservations {
		if err := ledger.release(ctx, r.ItemID, numericToDecimal(r.Quantity), line.ID); err != nil {
			return err
		}
	}

	extras, err := store.ListOrderLineExtras(ctx, line.ID)
	if err != nil {
		return fmt.Errorf("list line extras: %w", err)
	}
	exclusions, err := store.ListOrderLineExclusions(ctx, line.ID)
	if err != nil {
		return fmt.Errorf("list line exclusions: %w", err)
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}
	exclusionsJSON, err := json.Marshal(exclusions)
	if err != nil {
		return fmt.Errorf("marshal exclusions: %w", err)
	}

	if _, err := store.CreateRemovedLine(ctx, database.CreateRemovedLineParams{
		OrderID:     line.OrderID,
		ProductID:   line.ProductID,
		ProductName: line.ProductName,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		Notes:       line.Notes,
		Exclusions:  exclusionsJSON,
		Extras:      extrasJSON,
		AddedAt:     pgtype.Timestamptz{Time: line.AddedAt, Valid: true},
		RemovedBy:   actor.UserID,
	}); err != nil {
		return fmt.Errorf("create removed line: %w", err)
	}

	if err := store.DeleteOrderLineReservations(ctx, line.ID); err != nil {
		return fmt.Errorf("delete reservations: %w", err)
	}
	if err := store.DeleteOrderLine(ctx, line.ID); err != nil {
		return fmt.Errorf("delete order line: %w", err)
	}
	return nil
}

// ApplyDiscount sets the order's discount percentage and recomputes totals.
func (s *LifecycleService) ApplyDiscount(ctx context.Context, actor Actor, tableNumber string, percent decimal.Decimal) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapApplyDiscount); err != nil {
		return nil, err
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, ErrInvalidDiscount
	}

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := store.GetActiveOrderByTableForUpdate(ctx, tableNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTableNotFound
			}
			return fmt.Errorf("get active order: %w", err)
		}
		if order.Status != enum.OrderStatusOpen {
			return ErrOrderNotOpen
		}
		if _, err := recomputeOrderTotals(ctx, store, order.ID, percent); err != nil {
			return err
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MergeTables folds the secondary tables' orders into the primary's,
// applying the same merge policy as order taking: identical product and
// modification set sum quantities, anything else moves over as its own
// line. Removal logs follow their lines; all stock stays where it is.
// Locks are taken in table-number order so two overlapping merges
// cannot deadlock.
func (s *LifecycleService) MergeTables(ctx context.Context, actor Actor, primaryTable string, secondaryTables []string) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapMergeTables); err != nil {
		return nil, err
	}
	if len(secondaryTables) == 0 {
		return nil, ErrTableNotFound
	}
	for _, t := range secondaryTables {
		if t == primaryTable {
			return nil, ErrMergeSelf
		}
	}

	lockOrder := append([]string{primaryTable}, secondaryTables...)
	sort.Strings(lockOrder)

	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		orders := make(map[string]database.Order, len(lockOrder))
		for _, t := range lockOrder {
			order, err := store.GetActiveOrderByTableForUpdate(ctx, t)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("table %s: %w", t, ErrTableNotFound)
				}
				return fmt.Errorf("get active order: %w", err)
			}
			if order.Status != enum.OrderStatusOpen {
				return fmt.Errorf("table %s: %w", t, ErrOrderNotOpen)
			}
			orders[t] = order
		}

		primary := orders[primaryTable]
		primaryLines, err := loadLineResults(ctx, store, primary.ID)
		if err != nil {
			return err
		}

		for _, t := range secondaryTables {
			secondary := orders[t]
			secondaryLines, err := loadLineResults(ctx, store, secondary.ID)
			if err != nil {
				return err
			}
			for _, sl := range secondaryLines {
				primaryLines, err = mergeLineInto(ctx, store, primary.ID, primaryLines, sl)
				if err != nil {
					return err
				}
			}
			if err := store.ReassignRemovedLines(ctx, database.ReassignRemovedLinesParams{
				FromOrderID: secondary.ID,
				ToOrderID:   primary.ID,
			}); err != nil {
				return fmt.Errorf("reassign removed lines: %w", err)
			}
			if err := store.DeleteOrder(ctx, secondary.ID); err != nil {
				return fmt.Errorf("delete merged order: %w", err)
			}
		}

		if _, err := recomputeOrderTotals(ctx, store, primary.ID, numericToDecimal(primary.DiscountPercent)); err != nil {
			return err
		}
		result, err = loadOrderResult(ctx, store, primary.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// mergeLineInto folds one secondary line into the primary order. On a
// modification-set match the quantities sum and the secondary line's
// reservation rows are added to the survivor's before the line is deleted.
// Otherwise the line is reparented wholesale, its extras, exclusions and
// reservations following the line_id.
func mergeLineInto(ctx context.Context, store Store, primaryOrderID uuid.UUID, primaryLines []LineResult, sl LineResult) ([]LineResult, error) {
	in := LineInput{ProductID: sl.Line.ProductID, Quantity: sl.Line.Quantity}
	for _, e := range sl.Exclusions {
		in.Exclusions = append(in.Exclusions, e.IngredientID)
	}
	for _, e := range sl.Extras {
		in.Extras = append(in.Extras, ExtraInput{IngredientID: e.IngredientID, Quantity: e.Quantity})
	}

	target := findMergeTarget(primaryLines, in)
	if target == nil {
		line, err := store.MoveOrderLine(ctx, database.MoveOrderLineParams{
			ID:      sl.Line.ID,
			OrderID: primaryOrderID,
		})
		if err != nil {
			return nil, fmt.Errorf("move order line: %w", err)
		}
		sl.Line = line
		return append(primaryLines, sl), nil
	}

	reservations, err := store.ListOrderLineReservations(ctx, sl.Line.ID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range reservations {
		if _, err := store.UpsertOrderLineReservation(ctx, database.UpsertOrderLineReservationParams{
			LineID:   target.Line.ID,
			ItemID:   r.ItemID,
			Quantity: r.Quantity,
		}); err != nil {
			return nil, fmt.Errorf("transfer reservation: %w", err)
		}
	}
	if err := store.DeleteOrderLineReservations(ctx, sl.Line.ID); err != nil {
		return nil, fmt.Errorf("delete reservations: %w", err)
	}
	if err := store.DeleteOrderLine(ctx, sl.Line.ID); err != nil {
		return nil, fmt.Errorf("delete merged line: %w", err)
	}

	line, err := store.UpdateOrderLineQuantity(ctx, database.UpdateOrderLineQuantityParams{
		ID:       target.Line.ID,
		Quantity: target.Line.Quantity + sl.Line.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("update line quantity: %w", err)
	}
	target.Line = line
	return primaryLines, nil
}

// Close ends the table's tab. PREBILL mode parks the order awaiting payment
// confirmation; TICKET mode assigns a fiscal number immediately. Stock is
// untouched either way, it was reserved when lines were added.
func (s *LifecycleService) Close(ctx context.Context, actor Actor, tableNumber, paymentMethod, mode string) (*OrderResult, error) {
	if err := requireCapability(actor, enum.CapCloseTables); err != nil {
		return nil, err
	}
	if !isValidPaymentMethod(paymentMethod) {
		return nil, ErrInvalidPaymentMethod
	}

	switch mode {
	case enum.CloseModePreBill:
		var result *OrderResult
		err := s.withTx(ctx, func(store Store) error {
			order, err := store.GetActiveOrderByTableForUpdate(ctx, tableNumber)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrTableNotFound
				}
				return fmt.Errorf("get active order: %w", err)
			}
			if order.Status != enum.OrderStatusOpen {
				return ErrOrderNotOpen
			}
			if _, err := store.MarkOrderPreBill(ctx, database.MarkOrderPreBillParams{
				ID:            order.ID,
				PaymentMethod: paymentMethod,
			}); err != nil {
				return fmt.Errorf("mark pre-bill: %w", err)
			}
			result, err = loadOrderResult(ctx, store, order.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return result, nil

	case enum.CloseModeTicket:
		return s.closeAsTicket(ctx, tableNumber, paymentMethod)

	default:
		return nil, ErrInvalidCloseMode
	}
}

// closeAsTicket assigns the next ticket-series number and closes the order.
// Losing the sequence race aborts the whole transaction, so a retry starts
// clean with a fresh max read.
func (s *LifecycleService) closeAsTicket(ctx context.Context, tableNumber, paymentMethod string) (*OrderResult, error) {
	fiscalYear := int32(s.now().Year())

	var result *OrderResult
	var err error
	for attempt := 0; attempt < maxFiscalNumberRetries; attempt++ {
		err = s.withTx(ctx, func(store Store) error {
			order, err := store.GetActiveOrderByTableForUpdate(ctx, tableNumber)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrTableNotFound
				}
				return fmt.Errorf("get active order: %w", err)
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
				PaymentMethod:  paymentMethod,
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

// GetTableOrder loads the table's active order with lines and removal log.
func (s *LifecycleService) GetTableOrder(ctx context.Context, tableNumber string) (*OrderResult, error) {
	var result *OrderResult
	err := s.withTx(ctx, func(store Store) error {
		order, err := store.GetActiveOrderByTable(ctx, tableNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTableNotFound
			}
			return fmt.Errorf("get active order: %w", err)
		}
		result, err = loadOrderResult(ctx, store, order.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
