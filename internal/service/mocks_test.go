package service

import (
	"context"
	"sort"
	"time"

	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock transaction plumbing ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct{}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error          { return nil }
func (m *mockTx) Rollback(ctx context.Context) error        { return nil }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// memTx snapshots the store at Begin and restores it on Rollback, so a
// failed service call leaves the fake exactly as it was.
type memTx struct {
	mockTx
	store *memStore
	snap  *memStore
	done  bool
}

func (t *memTx) Commit(ctx context.Context) error { t.done = true; return nil }
func (t *memTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.store.restore(t.snap)
	}
	return nil
}

// memBeginner implements TxBeginner over the shared memStore.
type memBeginner struct {
	store *memStore
}

func (b *memBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return &memTx{store: b.store, snap: b.store.clone()}, nil
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	exp, _ := decimal.NewFromString(expected)
	return numericToDecimal(n).Equal(exp)
}

// --- In-memory store ---

// memStore is a stateful fake of the whole Store interface. It honors the
// same guards the SQL does (status preconditions via pgx.ErrNoRows, the
// fiscal-number unique index via a 23505 pgconn error, the on-hand floor on
// decrement), which lets tests drive full lifecycle flows.
type memStore struct {
	venue        *database.Venue
	products     map[uuid.UUID]database.Product
	recipes      map[uuid.UUID][]database.ListProductIngredientsRow
	ingredients  map[uuid.UUID]database.Ingredient
	stock        map[uuid.UUID]database.StockItem
	movements    []database.StockMovement
	orders       map[uuid.UUID]database.Order
	lines        map[uuid.UUID]database.OrderLine
	extras       map[uuid.UUID][]database.OrderLineExtra
	exclusions   map[uuid.UUID][]database.OrderLineExclusion
	reservations map[uuid.UUID][]database.OrderLineReservation
	removed      map[uuid.UUID][]database.RemovedLine
	lineSeq      map[uuid.UUID]int
	seq          int
}

func newMemStore() *memStore {
	return &memStore{
		products:     map[uuid.UUID]database.Product{},
		recipes:      map[uuid.UUID][]database.ListProductIngredientsRow{},
		ingredients:  map[uuid.UUID]database.Ingredient{},
		stock:        map[uuid.UUID]database.StockItem{},
		orders:       map[uuid.UUID]database.Order{},
		lines:        map[uuid.UUID]database.OrderLine{},
		extras:       map[uuid.UUID][]database.OrderLineExtra{},
		exclusions:   map[uuid.UUID][]database.OrderLineExclusion{},
		reservations: map[uuid.UUID][]database.OrderLineReservation{},
		removed:      map[uuid.UUID][]database.RemovedLine{},
		lineSeq:      map[uuid.UUID]int{},
	}
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	if m.venue != nil {
		v := *m.venue
		c.venue = &v
	}
	for k, v := range m.products {
		c.products[k] = v
	}
	for k, v := range m.recipes {
		c.recipes[k] = append([]database.ListProductIngredientsRow(nil), v...)
	}
	for k, v := range m.ingredients {
		c.ingredients[k] = v
	}
	for k, v := range m.stock {
		c.stock[k] = v
	}
	c.movements = append([]database.StockMovement(nil), m.movements...)
	for k, v := range m.orders {
		c.orders[k] = v
	}
	for k, v := range m.lines {
		c.lines[k] = v
	}
	for k, v := range m.extras {
		c.extras[k] = append([]database.OrderLineExtra(nil), v...)
	}
	for k, v := range m.exclusions {
		c.exclusions[k] = append([]database.OrderLineExclusion(nil), v...)
	}
	for k, v := range m.reservations {
		c.reservations[k] = append([]database.OrderLineReservation(nil), v...)
	}
	for k, v := range m.removed {
		c.removed[k] = append([]database.RemovedLine(nil), v...)
	}
	for k, v := range m.lineSeq {
		c.lineSeq[k] = v
	}
	c.seq = m.seq
	return c
}

func (m *memStore) restore(snap *memStore) {
	*m = *snap.clone()
}

// Venue

func (m *memStore) GetVenue(ctx context.Context) (database.Venue, error) {
	if m.venue == nil {
		return database.Venue{}, pgx.ErrNoRows
	}
	return *m.venue, nil
}

func (m *memStore) UpsertVenue(ctx context.Context, arg database.UpsertVenueParams) (database.Venue, error) {
	m.venue = &database.Venue{
		Name:         arg.Name,
		TaxID:        arg.TaxID,
		Address:      arg.Address,
		CurrencyCode: arg.CurrencyCode,
		UpdatedAt:    time.Now(),
	}
	return *m.venue, nil
}

// Catalog

func (m *memStore) GetProductForOrder(ctx context.Context, id uuid.UUID) (database.GetProductForOrderRow, error) {
	p, ok := m.products[id]
	if !ok || !p.Active {
		return database.GetProductForOrderRow{}, pgx.ErrNoRows
	}
	return database.GetProductForOrderRow{ID: p.ID, Name: p.Name, Price: p.Price, TrackStock: p.TrackStock}, nil
}

func (m *memStore) ListProductIngredients(ctx context.Context, productID uuid.UUID) ([]database.ListProductIngredientsRow, error) {
	return append([]database.ListProductIngredientsRow(nil), m.recipes[productID]...), nil
}

func (m *memStore) GetIngredient(ctx context.Context, id uuid.UUID) (database.Ingredient, error) {
	i, ok := m.ingredients[id]
	if !ok {
		return database.Ingredient{}, pgx.ErrNoRows
	}
	return i, nil
}

// Stock

func (m *memStore) GetStockItem(ctx context.Context, id uuid.UUID) (database.StockItem, error) {
	s, ok := m.stock[id]
	if !ok {
		return database.StockItem{}, pgx.ErrNoRows
	}
	return s, nil
}

func (m *memStore) DecrementStock(ctx context.Context, arg database.DecrementStockParams) (database.StockItem, error) {
	s, ok := m.stock[arg.ID]
	if !ok {
		return database.StockItem{}, pgx.ErrNoRows
	}
	onHand := numericToDecimal(s.OnHand)
	qty := numericToDecimal(arg.Quantity)
	if onHand.LessThan(qty) {
		return database.StockItem{}, pgx.ErrNoRows
	}
	s.OnHand = decimalToNumeric(onHand.Sub(qty))
	s.UpdatedAt = time.Now()
	m.stock[arg.ID] = s
	return s, nil
}

func (m *memStore) IncrementStock(ctx context.Context, arg database.IncrementStockParams) (database.StockItem, error) {
	s, ok := m.stock[arg.ID]
	if !ok {
		return database.StockItem{}, pgx.ErrNoRows
	}
	s.OnHand = decimalToNumeric(numericToDecimal(s.OnHand).Add(numericToDecimal(arg.Quantity)))
	s.UpdatedAt = time.Now()
	m.stock[arg.ID] = s
	return s, nil
}

func (m *memStore) CreateStockMovement(ctx context.Context, arg database.CreateStockMovementParams) (database.StockMovement, error) {
	mv := database.StockMovement{
		ID:           uuid.New(),
		ItemID:       arg.ItemID,
		Kind:         arg.Kind,
		Quantity:     arg.Quantity,
		OnHandBefore: arg.OnHandBefore,
		OnHandAfter:  arg.OnHandAfter,
		Reason:       arg.Reason,
		ReferenceID:  arg.ReferenceID,
		CreatedAt:    time.Now(),
	}
	m.movements = append(m.movements, mv)
	return mv, nil
}

// Orders

func (m *memStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	o := database.Order{
		ID:              uuid.New(),
		TableNumber:     arg.TableNumber,
		ServerID:        arg.ServerID,
		Status:          enum.OrderStatusOpen,
		DiscountPercent: arg.DiscountPercent,
		Subtotal:        arg.Subtotal,
		Total:           arg.Total,
		OpenedAt:        time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	return o, nil
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) GetActiveOrderByTable(ctx context.Context, tableNumber string) (database.Order, error) {
	for _, o := range m.orders {
		if o.TableNumber == tableNumber &&
			(o.Status == enum.OrderStatusOpen || o.Status == enum.OrderStatusPreBill) {
			return o, nil
		}
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *memStore) GetActiveOrderByTableForUpdate(ctx context.Context, tableNumber string) (database.Order, error) {
	return m.GetActiveOrderByTable(ctx, tableNumber)
}

func (m *memStore) UpdateOrderTotals(ctx context.Context, arg database.UpdateOrderTotalsParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok {
		return database.Order{}, pgx.ErrNoRows
	}
	o.DiscountPercent = arg.DiscountPercent
	o.Subtotal = arg.Subtotal
	o.Total = arg.Total
	o.UpdatedAt = time.Now()
	m.orders[arg.ID] = o
	return o, nil
}

func (m *memStore) MarkOrderPreBill(ctx context.Context, arg database.MarkOrderPreBillParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != enum.OrderStatusOpen {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusPreBill
	o.PaymentMethod = pgtype.Text{String: arg.PaymentMethod, Valid: true}
	m.orders[arg.ID] = o
	return o, nil
}

func (m *memStore) ReopenPreBill(ctx context.Context, id uuid.UUID) (database.Order, error) {
	o, ok := m.orders[id]
	if !ok || o.Status != enum.OrderStatusPreBill {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusOpen
	o.PaymentMethod = pgtype.Text{}
	m.orders[id] = o
	return o, nil
}

func (m *memStore) UpdateOrderPaymentMethod(ctx context.Context, arg database.UpdateOrderPaymentMethodParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || (o.Status != enum.OrderStatusPreBill && o.Status != enum.OrderStatusClosed) {
		return database.Order{}, pgx.ErrNoRows
	}
	o.PaymentMethod = pgtype.Text{String: arg.PaymentMethod, Valid: true}
	m.orders[arg.ID] = o
	return o, nil
}

func fiscalConflictErr() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: "idx_orders_fiscal_number"}
}

func (m *memStore) fiscalNumberTaken(exclude uuid.UUID, series string, seq, year int32) bool {
	for _, o := range m.orders {
		if o.ID == exclude || !o.SequenceNumber.Valid {
			continue
		}
		if o.Series.String == series && o.SequenceNumber.Int32 == seq && o.FiscalYear.Int32 == year {
			return true
		}
	}
	return false
}

func (m *memStore) CloseOrder(ctx context.Context, arg database.CloseOrderParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || (o.Status != enum.OrderStatusOpen && o.Status != enum.OrderStatusPreBill) {
		return database.Order{}, pgx.ErrNoRows
	}
	if m.fiscalNumberTaken(arg.ID, arg.Series, arg.SequenceNumber, arg.FiscalYear) {
		return database.Order{}, fiscalConflictErr()
	}
	o.Status = enum.OrderStatusClosed
	o.Series = pgtype.Text{String: arg.Series, Valid: true}
	o.SequenceNumber = pgtype.Int4{Int32: arg.SequenceNumber, Valid: true}
	o.FiscalYear = pgtype.Int4{Int32: arg.FiscalYear, Valid: true}
	o.FiscalNumber = pgtype.Text{String: arg.FiscalNumber, Valid: true}
	o.PaymentMethod = pgtype.Text{String: arg.PaymentMethod, Valid: true}
	o.ClosedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	m.orders[arg.ID] = o
	return o, nil
}

func (m *memStore) VoidOrder(ctx context.Context, arg database.VoidOrderParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != enum.OrderStatusClosed {
		return database.Order{}, pgx.ErrNoRows
	}
	o.Status = enum.OrderStatusVoided
	o.VoidReason = pgtype.Text{String: arg.VoidReason, Valid: true}
	m.orders[arg.ID] = o
	return o, nil
}

func (m *memStore) ReissueOrderAsInvoice(ctx context.Context, arg database.ReissueOrderAsInvoiceParams) (database.Order, error) {
	o, ok := m.orders[arg.ID]
	if !ok || o.Status != enum.OrderStatusClosed {
		return database.Order{}, pgx.ErrNoRows
	}
	if m.fiscalNumberTaken(arg.ID, arg.Series, arg.SequenceNumber, o.FiscalYear.Int32) {
		return database.Order{}, fiscalConflictErr()
	}
	o.Series = pgtype.Text{String: arg.Series, Valid: true}
	o.SequenceNumber = pgtype.Int4{Int32: arg.SequenceNumber, Valid: true}
	o.FiscalNumber = pgtype.Text{String: arg.FiscalNumber, Valid: true}
	o.CustomerName = pgtype.Text{String: arg.CustomerName, Valid: true}
	m.orders[arg.ID] = o
	return o, nil
}

func (m *memStore) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	delete(m.orders, id)
	for lineID, l := range m.lines {
		if l.OrderID == id {
			m.deleteLineCascade(lineID)
		}
	}
	delete(m.removed, id)
	return nil
}

func (m *memStore) GetMaxSequenceNumber(ctx context.Context, arg database.GetMaxSequenceNumberParams) (int32, error) {
	var max int32
	for _, o := range m.orders {
		if o.SequenceNumber.Valid && o.Series.String == arg.Series &&
			o.FiscalYear.Int32 == arg.FiscalYear && o.SequenceNumber.Int32 > max {
			max = o.SequenceNumber.Int32
		}
	}
	return max, nil
}

// Lines

func (m *memStore) CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error) {
	l := database.OrderLine{
		ID:          uuid.New(),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		ProductName: arg.ProductName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		Notes:       arg.Notes,
		AddedAt:     time.Now(),
	}
	m.lines[l.ID] = l
	m.seq++
	m.lineSeq[l.ID] = m.seq
	return l, nil
}

func (m *memStore) GetOrderLine(ctx context.Context, id uuid.UUID) (database.OrderLine, error) {
	l, ok := m.lines[id]
	if !ok {
		return database.OrderLine{}, pgx.ErrNoRows
	}
	return l, nil
}

func (m *memStore) ListOrderLines(ctx context.Context, orderID uuid.UUID) ([]database.OrderLine, error) {
	var out []database.OrderLine
	for _, l := range m.lines {
		if l.OrderID == orderID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.lineSeq[out[i].ID] < m.lineSeq[out[j].ID] })
	return out, nil
}

func (m *memStore) UpdateOrderLineQuantity(ctx context.Context, arg database.UpdateOrderLineQuantityParams) (database.OrderLine, error) {
	l, ok := m.lines[arg.ID]
	if !ok {
		return database.OrderLine{}, pgx.ErrNoRows
	}
	l.Quantity = arg.Quantity
	m.lines[arg.ID] = l
	return l, nil
}

func (m *memStore) MoveOrderLine(ctx context.Context, arg database.MoveOrderLineParams) (database.OrderLine, error) {
	l, ok := m.lines[arg.ID]
	if !ok {
		return database.OrderLine{}, pgx.ErrNoRows
	}
	l.OrderID = arg.OrderID
	m.lines[arg.ID] = l
	return l, nil
}

func (m *memStore) deleteLineCascade(id uuid.UUID) {
	delete(m.lines, id)
	delete(m.extras, id)
	delete(m.exclusions, id)
	delete(m.reservations, id)
	delete(m.lineSeq, id)
}

func (m *memStore) DeleteOrderLine(ctx context.Context, id uuid.UUID) error {
	m.deleteLineCascade(id)
	return nil
}

func (m *memStore) CreateOrderLineExtra(ctx context.Context, arg database.CreateOrderLineExtraParams) (database.OrderLineExtra, error) {
	e := database.OrderLineExtra{
		ID:             uuid.New(),
		LineID:         arg.LineID,
		IngredientID:   arg.IngredientID,
		IngredientName: arg.IngredientName,
		ExtraCost:      arg.ExtraCost,
		Quantity:       arg.Quantity,
	}
	m.extras[arg.LineID] = append(m.extras[arg.LineID], e)
	return e, nil
}

func (m *memStore) ListOrderLineExtras(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineExtra, error) {
	return append([]database.OrderLineExtra(nil), m.extras[lineID]...), nil
}

func (m *memStore) DeleteOrderLineExtra(ctx context.Context, arg database.DeleteOrderLineExtraParams) (database.OrderLineExtra, error) {
	list := m.extras[arg.LineID]
	for i, e := range list {
		if e.IngredientID == arg.IngredientID {
			m.extras[arg.LineID] = append(append([]database.OrderLineExtra(nil), list[:i]...), list[i+1:]...)
			return e, nil
		}
	}
	return database.OrderLineExtra{}, pgx.ErrNoRows
}

func (m *memStore) CreateOrderLineExclusion(ctx context.Context, arg database.CreateOrderLineExclusionParams) (database.OrderLineExclusion, error) {
	e := database.OrderLineExclusion{
		LineID:         arg.LineID,
		IngredientID:   arg.IngredientID,
		IngredientName: arg.IngredientName,
	}
	m.exclusions[arg.LineID] = append(m.exclusions[arg.LineID], e)
	return e, nil
}

func (m *memStore) ListOrderLineExclusions(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineExclusion, error) {
	return append([]database.OrderLineExclusion(nil), m.exclusions[lineID]...), nil
}

func (m *memStore) DeleteOrderLineExclusion(ctx context.Context, arg database.DeleteOrderLineExclusionParams) (database.OrderLineExclusion, error) {
	list := m.exclusions[arg.LineID]
	for i, e := range list {
		if e.IngredientID == arg.IngredientID {
			m.exclusions[arg.LineID] = append(append([]database.OrderLineExclusion(nil), list[:i]...), list[i+1:]...)
			return e, nil
		}
	}
	return database.OrderLineExclusion{}, pgx.ErrNoRows
}

func (m *memStore) UpsertOrderLineReservation(ctx context.Context, arg database.UpsertOrderLineReservationParams) (database.OrderLineReservation, error) {
	list := m.reservations[arg.LineID]
	for i, r := range list {
		if r.ItemID == arg.ItemID {
			r.Quantity = decimalToNumeric(numericToDecimal(r.Quantity).Add(numericToDecimal(arg.Quantity)))
			list[i] = r
			m.reservations[arg.LineID] = list
			return r, nil
		}
	}
	r := database.OrderLineReservation{LineID: arg.LineID, ItemID: arg.ItemID, Quantity: arg.Quantity}
	m.reservations[arg.LineID] = append(list, r)
	return r, nil
}

func (m *memStore) ListOrderLineReservations(ctx context.Context, lineID uuid.UUID) ([]database.OrderLineReservation, error) {
	return append([]database.OrderLineReservation(nil), m.reservations[lineID]...), nil
}

func (m *memStore) DecrementOrderLineReservation(ctx context.Context, arg database.DecrementOrderLineReservationParams) (database.OrderLineReservation, error) {
	list := m.reservations[arg.LineID]
	for i, r := range list {
		if r.ItemID == arg.ItemID {
			r.Quantity = decimalToNumeric(numericToDecimal(r.Quantity).Sub(numericToDecimal(arg.Quantity)))
			list[i] = r
			m.reservations[arg.LineID] = list
			return r, nil
		}
	}
	return database.OrderLineReservation{}, pgx.ErrNoRows
}

func (m *memStore) DeleteOrderLineReservations(ctx context.Context, lineID uuid.UUID) error {
	delete(m.reservations, lineID)
	return nil
}

func (m *memStore) CreateRemovedLine(ctx context.Context, arg database.CreateRemovedLineParams) (database.RemovedLine, error) {
	r := database.RemovedLine{
		ID:          uuid.New(),
		OrderID:     arg.OrderID,
		ProductID:   arg.ProductID,
		ProductName: arg.ProductName,
		Quantity:    arg.Quantity,
		UnitPrice:   arg.UnitPrice,
		Notes:       arg.Notes,
		Exclusions:  arg.Exclusions,
		Extras:      arg.Extras,
		AddedAt:     arg.AddedAt.Time,
		RemovedAt:   time.Now(),
		RemovedBy:   arg.RemovedBy,
	}
	m.removed[arg.OrderID] = append(m.removed[arg.OrderID], r)
	return r, nil
}

func (m *memStore) ListRemovedLines(ctx context.Context, orderID uuid.UUID) ([]database.RemovedLine, error) {
	return append([]database.RemovedLine(nil), m.removed[orderID]...), nil
}

func (m *memStore) ReassignRemovedLines(ctx context.Context, arg database.ReassignRemovedLinesParams) error {
	moved := m.removed[arg.FromOrderID]
	for i := range moved {
		moved[i].OrderID = arg.ToOrderID
	}
	m.removed[arg.ToOrderID] = append(m.removed[arg.ToOrderID], moved...)
	delete(m.removed, arg.FromOrderID)
	return nil
}
