package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/handler"
	"github.com/comanda-pos/api/internal/middleware"
	"github.com/comanda-pos/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// --- Mock OrderLifecycle ---

type mockOrderLifecycle struct {
	confirmFn  func(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error)
	getFn      func(ctx context.Context, tableNumber string) (*service.OrderResult, error)
	removeFn   func(ctx context.Context, actor service.Actor, tableNumber string, lineID, ingredientID uuid.UUID) (*service.OrderResult, error)
	discountFn func(ctx context.Context, actor service.Actor, tableNumber string, percent decimal.Decimal) (*service.OrderResult, error)
	mergeFn    func(ctx context.Context, actor service.Actor, primaryTable string, secondaryTables []string) (*service.OrderResult, error)
	closeFn    func(ctx context.Context, actor service.Actor, tableNumber, paymentMethod, mode string) (*service.OrderResult, error)
}

func (m *mockOrderLifecycle) ConfirmOrder(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error) {
	return m.confirmFn(ctx, actor, req)
}

func (m *mockOrderLifecycle) GetTableOrder(ctx context.Context, tableNumber string) (*service.OrderResult, error) {
	return m.getFn(ctx, tableNumber)
}

func (m *mockOrderLifecycle) RemoveLine(ctx context.Context, actor service.Actor, tableNumber string, lineID, ingredientID uuid.UUID) (*service.OrderResult, error) {
	return m.removeFn(ctx, actor, tableNumber, lineID, ingredientID)
}

func (m *mockOrderLifecycle) ApplyDiscount(ctx context.Context, actor service.Actor, tableNumber string, percent decimal.Decimal) (*service.OrderResult, error) {
	return m.discountFn(ctx, actor, tableNumber, percent)
}

func (m *mockOrderLifecycle) MergeTables(ctx context.Context, actor service.Actor, primaryTable string, secondaryTables []string) (*service.OrderResult, error) {
	return m.mergeFn(ctx, actor, primaryTable, secondaryTables)
}

func (m *mockOrderLifecycle) Close(ctx context.Context, actor service.Actor, tableNumber, paymentMethod, mode string) (*service.OrderResult, error) {
	return m.closeFn(ctx, actor, tableNumber, paymentMethod, mode)
}

// --- Test helpers ---

const testJWTSecret = "test-secret-for-handlers"

func testClaims(role string) *auth.Claims {
	return &auth.Claims{
		UserID:       uuid.New(),
		FullName:     "Test User",
		Role:         role,
		Capabilities: enum.CapabilitiesForRole(role),
	}
}

func setupOrderRouter(svc *mockOrderLifecycle) *chi.Mux {
	h := handler.NewOrderHandler(svc, nil)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		h.RegisterRoutes(r)
	})
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.FullName, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doRequest(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatalf("scan numeric %q: %v", s, err)
	}
	return n
}

func testOrderResult(t *testing.T, table string, serverID uuid.UUID) *service.OrderResult {
	t.Helper()
	orderID := uuid.New()
	now := time.Now()
	return &service.OrderResult{
		Order: database.Order{
			ID:              orderID,
			TableNumber:     table,
			ServerID:        serverID,
			Status:          enum.OrderStatusOpen,
			DiscountPercent: testNumeric(t, "0"),
			Subtotal:        testNumeric(t, "7.30"),
			Total:           testNumeric(t, "7.30"),
			OpenedAt:        now,
		},
		Lines: []service.LineResult{
			{
				Line: database.OrderLine{
					ID:          uuid.New(),
					OrderID:     orderID,
					ProductID:   uuid.New(),
					ProductName: "Margherita",
					Quantity:    2,
					UnitPrice:   testNumeric(t, "2.50"),
					AddedAt:     now,
				},
			},
			{
				Line: database.OrderLine{
					ID:          uuid.New(),
					OrderID:     orderID,
					ProductID:   uuid.New(),
					ProductName: "Cola",
					Quantity:    1,
					UnitPrice:   testNumeric(t, "2.30"),
					AddedAt:     now,
				},
			},
		},
	}
}

// --- Tests ---

func TestConfirmLines_HappyPath(t *testing.T) {
	claims := testClaims(enum.UserRoleWaiter)
	productID := uuid.New()

	svc := &mockOrderLifecycle{
		confirmFn: func(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error) {
			if actor.UserID != claims.UserID {
				t.Errorf("actor user: got %v, want %v", actor.UserID, claims.UserID)
			}
			if req.TableNumber != "T1" {
				t.Errorf("table: got %q, want T1", req.TableNumber)
			}
			if len(req.Lines) != 1 || req.Lines[0].ProductID != productID || req.Lines[0].Quantity != 2 {
				t.Errorf("lines not passed through: %+v", req.Lines)
			}
			return testOrderResult(t, "T1", claims.UserID), nil
		},
	}

	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/lines", map[string]interface{}{
		"lines": []map[string]interface{}{
			{"product_id": productID.String(), "quantity": 2},
		},
	}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	resp := decodeBody(t, rr)
	if resp["table_number"] != "T1" {
		t.Errorf("table_number: got %v, want T1", resp["table_number"])
	}
	if resp["status"] != "OPEN" {
		t.Errorf("status: got %v, want OPEN", resp["status"])
	}
	if resp["subtotal"] != "7.30" {
		t.Errorf("subtotal: got %v, want 7.30", resp["subtotal"])
	}
	lines, ok := resp["lines"].([]interface{})
	if !ok || len(lines) != 2 {
		t.Fatalf("lines: got %v, want 2 entries", resp["lines"])
	}
	first := lines[0].(map[string]interface{})
	if first["product_name"] != "Margherita" {
		t.Errorf("product_name: got %v, want Margherita", first["product_name"])
	}
	if first["unit_price"] != "2.50" {
		t.Errorf("unit_price: got %v, want 2.50", first["unit_price"])
	}
}

func TestConfirmLines_InvalidBody(t *testing.T) {
	svc := &mockOrderLifecycle{}
	router := setupOrderRouter(svc)
	claims := testClaims(enum.UserRoleWaiter)

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.FullName, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	req := httptest.NewRequest("POST", "/tables/T1/order/lines", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestConfirmLines_EmptyLinesRejected(t *testing.T) {
	svc := &mockOrderLifecycle{
		confirmFn: func(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error) {
			return nil, service.ErrEmptyLines
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/lines", map[string]interface{}{"lines": []interface{}{}}, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestConfirmLines_InsufficientStockConflict(t *testing.T) {
	svc := &mockOrderLifecycle{
		confirmFn: func(ctx context.Context, actor service.Actor, req service.ConfirmOrderRequest) (*service.OrderResult, error) {
			return nil, service.ErrInsufficientStock
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/lines", map[string]interface{}{
		"lines": []map[string]interface{}{{"product_id": uuid.New().String(), "quantity": 99}},
	}, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusConflict, rr.Body.String())
	}
}

func TestConfirmLines_NoAuth(t *testing.T) {
	svc := &mockOrderLifecycle{}
	router := setupOrderRouter(svc)

	req := httptest.NewRequest("POST", "/tables/T1/order/lines", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := &mockOrderLifecycle{
		getFn: func(ctx context.Context, tableNumber string) (*service.OrderResult, error) {
			return nil, service.ErrTableNotFound
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "GET", "/tables/T9/order/", nil, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusNotFound, rr.Body.String())
	}
}

func TestRemoveLine_WholeLine(t *testing.T) {
	claims := testClaims(enum.UserRoleManager)
	lineID := uuid.New()

	svc := &mockOrderLifecycle{
		removeFn: func(ctx context.Context, actor service.Actor, tableNumber string, gotLine, gotIngredient uuid.UUID) (*service.OrderResult, error) {
			if gotLine != lineID {
				t.Errorf("line: got %v, want %v", gotLine, lineID)
			}
			if gotIngredient != uuid.Nil {
				t.Errorf("ingredient: got %v, want nil UUID", gotIngredient)
			}
			return testOrderResult(t, tableNumber, claims.UserID), nil
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "DELETE", "/tables/T1/order/lines/"+lineID.String(), nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestRemoveLine_SingleIngredient(t *testing.T) {
	claims := testClaims(enum.UserRoleWaiter)
	lineID := uuid.New()
	ingredientID := uuid.New()

	svc := &mockOrderLifecycle{
		removeFn: func(ctx context.Context, actor service.Actor, tableNumber string, gotLine, gotIngredient uuid.UUID) (*service.OrderResult, error) {
			if gotIngredient != ingredientID {
				t.Errorf("ingredient: got %v, want %v", gotIngredient, ingredientID)
			}
			return testOrderResult(t, tableNumber, claims.UserID), nil
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "DELETE", "/tables/T1/order/lines/"+lineID.String()+"?ingredient_id="+ingredientID.String(), nil, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestRemoveLine_InvalidLineID(t *testing.T) {
	svc := &mockOrderLifecycle{}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "DELETE", "/tables/T1/order/lines/not-a-uuid", nil, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRemoveLine_Forbidden(t *testing.T) {
	svc := &mockOrderLifecycle{
		removeFn: func(ctx context.Context, actor service.Actor, tableNumber string, lineID, ingredientID uuid.UUID) (*service.OrderResult, error) {
			return nil, service.ErrUnauthorized
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "DELETE", "/tables/T1/order/lines/"+uuid.New().String(), nil, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusForbidden, rr.Body.String())
	}
}

func TestApplyDiscount_PassesPercent(t *testing.T) {
	claims := testClaims(enum.UserRoleManager)
	svc := &mockOrderLifecycle{
		discountFn: func(ctx context.Context, actor service.Actor, tableNumber string, percent decimal.Decimal) (*service.OrderResult, error) {
			if !percent.Equal(decimal.NewFromInt(10)) {
				t.Errorf("percent: got %s, want 10", percent)
			}
			return testOrderResult(t, tableNumber, claims.UserID), nil
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/discount", map[string]interface{}{"percent": 10}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestApplyDiscount_OutOfRange(t *testing.T) {
	svc := &mockOrderLifecycle{
		discountFn: func(ctx context.Context, actor service.Actor, tableNumber string, percent decimal.Decimal) (*service.OrderResult, error) {
			return nil, service.ErrInvalidDiscount
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/discount", map[string]interface{}{"percent": 101}, testClaims(enum.UserRoleManager))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestMergeTables_PassesTables(t *testing.T) {
	claims := testClaims(enum.UserRoleWaiter)
	svc := &mockOrderLifecycle{
		mergeFn: func(ctx context.Context, actor service.Actor, primaryTable string, secondaryTables []string) (*service.OrderResult, error) {
			if primaryTable != "T1" {
				t.Errorf("primary: got %q, want T1", primaryTable)
			}
			if len(secondaryTables) != 2 || secondaryTables[0] != "T2" || secondaryTables[1] != "T3" {
				t.Errorf("secondaries: got %v", secondaryTables)
			}
			return testOrderResult(t, primaryTable, claims.UserID), nil
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/merge", map[string]interface{}{"tables": []string{"T2", "T3"}}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
}

func TestMergeTables_SelfMergeRejected(t *testing.T) {
	svc := &mockOrderLifecycle{
		mergeFn: func(ctx context.Context, actor service.Actor, primaryTable string, secondaryTables []string) (*service.OrderResult, error) {
			return nil, service.ErrMergeSelf
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/merge", map[string]interface{}{"tables": []string{"T1"}}, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestClose_PassesModeAndPayment(t *testing.T) {
	claims := testClaims(enum.UserRoleWaiter)
	svc := &mockOrderLifecycle{
		closeFn: func(ctx context.Context, actor service.Actor, tableNumber, paymentMethod, mode string) (*service.OrderResult, error) {
			if paymentMethod != "CASH" {
				t.Errorf("payment: got %q, want CASH", paymentMethod)
			}
			if mode != "TICKET" {
				t.Errorf("mode: got %q, want TICKET", mode)
			}
			res := testOrderResult(t, tableNumber, claims.UserID)
			res.Order.Status = enum.OrderStatusClosed
			res.Order.FiscalNumber = pgtype.Text{String: "B/2026/000001", Valid: true}
			return res, nil
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/close", map[string]interface{}{
		"payment_method": "CASH",
		"mode":           "TICKET",
	}, claims)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["fiscal_number"] != "B/2026/000001" {
		t.Errorf("fiscal_number: got %v, want B/2026/000001", resp["fiscal_number"])
	}
}

func TestClose_NumberingContention(t *testing.T) {
	svc := &mockOrderLifecycle{
		closeFn: func(ctx context.Context, actor service.Actor, tableNumber, paymentMethod, mode string) (*service.OrderResult, error) {
			return nil, service.ErrDuplicateFiscalNumber
		},
	}
	router := setupOrderRouter(svc)
	rr := doAuthRequest(t, router, "POST", "/tables/T1/order/close", map[string]interface{}{
		"payment_method": "CASH",
		"mode":           "TICKET",
	}, testClaims(enum.UserRoleWaiter))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusServiceUnavailable, rr.Body.String())
	}
}
