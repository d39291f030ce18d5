package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grinkrawear/backend/internal/cache"
	"grinkrawear/backend/internal/domain"
	"grinkrawear/backend/internal/service"
	"grinkrawear/backend/internal/store/memory"
)

// newTestHandler builds the full stack on the seeded in-memory store so
// handler tests exercise routing, auth and capability checks end to end.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopSummaryCache{}, time.Minute)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*").Router()
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d, body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	handler := newTestHandler(t)

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestLoginEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	token := login(t, handler, "admin", "admin123")
	if token == "" {
		t.Fatal("expected a token")
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d", rec.Code)
	}
}

func TestProductCreateAndList(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"name":                "Spring Windbreaker",
		"category_id":         "cat-jacket",
		"season":              "SP",
		"gender":              "M",
		"color":               "GR",
		"size":                "L",
		"price":               89.99,
		"initial_stock":       12,
		"low_stock_threshold": 4,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if created.SKU != "GRK-SP-JK-M-GR-L-001" {
		t.Fatalf("sku = %q", created.SKU)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products?search=Windbreaker", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []domain.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].SKU != created.SKU {
		t.Fatalf("listed = %+v", listed)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/no-such-sku", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing product status = %d", rec.Code)
	}
}

func TestStockAdjustEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products/GRK-AY-TS-U-BK-M-001/stock", token, map[string]any{
		"delta":  -10,
		"reason": "damaged in transit",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("adjust status = %d, body %s", rec.Code, rec.Body.String())
	}
	var adjusted domain.StockAdjustResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &adjusted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if adjusted.Quantity != 50 {
		t.Fatalf("quantity = %d, want 50", adjusted.Quantity)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/GRK-AY-TS-U-BK-M-001/stock", token, map[string]any{
		"delta":  -100,
		"reason": "oversell attempt",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/GRK-AY-TS-U-BK-M-001/movements", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("movements status = %d", rec.Code)
	}
	var movements []domain.StockMovement
	if err := json.Unmarshal(rec.Body.Bytes(), &movements); err != nil {
		t.Fatalf("decode movements: %v", err)
	}
	if len(movements) != 1 || movements[0].Delta != -10 {
		t.Fatalf("movements = %+v", movements)
	}
}

func TestInvoiceEndpoints(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices", token, map[string]any{
		"customer_id": "cust-andi",
		"discount":    5,
		"tax_amount":  7,
		"items": []map[string]any{
			{"sku": "GRK-SU-TS-M-RD-M-001", "quantity": 2},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var invoice domain.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if invoice.Number != "INV-000001" {
		t.Fatalf("number = %q", invoice.Number)
	}
	if !invoice.TotalAmount.Equal(decimal.NewFromInt(72)) {
		t.Fatalf("total = %s, want 72", invoice.TotalAmount)
	}

	payPath := fmt.Sprintf("/api/v1/invoices/%s/payments", invoice.Number)
	rec = doJSON(t, handler, http.MethodPost, payPath, token, map[string]any{"amount": 72})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment status = %d, body %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &invoice); err != nil {
		t.Fatalf("decode paid invoice: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusPaid {
		t.Fatalf("status = %q, want paid", invoice.Status)
	}

	cancelPath := fmt.Sprintf("/api/v1/invoices/%s/cancel", invoice.Number)
	rec = doJSON(t, handler, http.MethodPost, cancelPath, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, cancelPath, token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/invoices/INV-999999", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing invoice status = %d", rec.Code)
	}
}

func TestCapabilityEnforcedOverHTTP(t *testing.T) {
	handler := newTestHandler(t)
	staffToken := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", staffToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff product list status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/users", staffToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff user list status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/customers", staffToken, map[string]any{"name": "New Buyer"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff customer create status = %d", rec.Code)
	}
}

func TestUnknownJSONFieldRejected(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, map[string]any{
		"name":  "Budi Santoso",
		"bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardSummaryEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/dashboard/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary domain.DashboardSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.ProductCount != 5 || summary.CustomerCount != 2 {
		t.Fatalf("summary counts = %d products, %d customers", summary.ProductCount, summary.CustomerCount)
	}
}

func TestSalesReportFormats(t *testing.T) {
	handler := newTestHandler(t)
	token := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/invoices", token, map[string]any{
		"customer_id": "cust-sari",
		"items": []map[string]any{
			{"sku": "GRK-WI-HD-U-BK-L-001", "quantity": 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed invoice status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("json report status = %d", rec.Code)
	}
	var report domain.SalesReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(report.Rows))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?format=csv", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv report status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("csv content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "INV-000001") {
		t.Fatalf("csv body missing invoice: %s", rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?format=xlsx", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("xlsx report status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("xlsx content type = %q", ct)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?format=pdf", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad format status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/sales?from=2026-02-01&to=2026-01-01", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reversed range status = %d", rec.Code)
	}
}
