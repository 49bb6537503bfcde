package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bodega/backend/internal/domain"
	"bodega/backend/internal/metrics"
	"bodega/backend/internal/service"
	"bodega/backend/internal/store"
	"bodega/backend/internal/store/memory"
)

const testAccessPassword = "clave-de-prueba"

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	return newTestAPIWithOptions(t, Options{AllowedOrigin: "*"})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *API {
	t.Helper()

	svc := service.New(memory.NewSeeded(), nil, opts.Metrics, zerolog.Nop())
	auth := NewAuthManager("test-secret-key-with-enough-length", time.Hour, testAccessPassword)
	opts.Logger = zerolog.Nop()
	return New(svc, auth, opts)
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeSale(t *testing.T, rec *httptest.ResponseRecorder) domain.Sale {
	t.Helper()
	var body struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	return body.Sale
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", map[string]string{"password": "wrongpassword"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_RejectsUnknownFields(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "admin",
		"password": testAccessPassword,
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/products", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestProductRoutes(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := login(t, api)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var list struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	if len(list.Products) != 8 {
		t.Fatalf("expected 8 seeded products, got %d", len(list.Products))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{
		"name": "Fideos", "category": "abarrotes", "price": 3.2, "stock": 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/products/9", token, map[string]any{"stock": 20})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on update, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var updated struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&updated); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if updated.Product.Stock != 20 || updated.Product.Name != "Fideos" {
		t.Fatalf("unexpected product after update: %+v", updated.Product)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", token, map[string]any{"name": "", "price": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for nameless product, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/9", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/products/9", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/products/abc", token, map[string]any{"stock": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

func TestSaleRoutesLifecycle(t *testing.T) {
	recorder := metrics.New()
	api := newTestAPIWithOptions(t, Options{AllowedOrigin: "*", Metrics: recorder})
	handler := api.Handler()
	token := login(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, map[string]any{
		"customer":       "Ana",
		"kind":           "sale",
		"payment_method": "cash",
		"paid":           5,
		"items":          []map[string]any{{"product_id": 1, "quantity": 3}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sale := decodeSale(t, rec)
	if sale.Status != domain.SaleStatusPartial || sale.Debt.String() != "7" {
		t.Fatalf("unexpected sale: status %s debt %s", sale.Status, sale.Debt)
	}
	salePath := fmt.Sprintf("/api/v1/sales/%d", sale.ID)

	rec = doJSON(t, handler, http.MethodPost, salePath+"/abonos", token, map[string]any{"amount": 8})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for abono above debt, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, salePath+"/abonos", token, map[string]any{"amount": 7})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for abono, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := decodeSale(t, rec); got.Status != domain.SaleStatusPaid {
		t.Fatalf("expected Paid after settling abono, got %s", got.Status)
	}

	rec = doJSON(t, handler, http.MethodPut, salePath, token, map[string]any{
		"total": 8,
		"paid":  8,
		"items": []map[string]any{{"product_id": 1, "quantity": 2, "name": "Arroz 1kg", "unit_price": 4}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for edit, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?order=asc", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing sales, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales?order=sideways", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad order, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, salePath, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, salePath, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", token, nil)
	var list struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode products: %v", err)
	}
	for _, p := range list.Products {
		if p.ID == 1 && p.Stock != 40 {
			t.Fatalf("expected stock restored to 40, got %d", p.Stock)
		}
	}

	rec = doJSON(t, handler, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `bodega_sales_created_total{kind="sale"} 1`) {
		t.Fatalf("expected sale counter in metrics output, got %d", rec.Code)
	}
}

func TestCreateSaleInsufficientStockIsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/sales", token, map[string]any{
		"items": []map[string]any{{"product_id": 1, "quantity": 41}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "insufficient stock") {
		t.Fatalf("expected stock message, got %s", rec.Body.String())
	}
}

func TestStatusForMapsErrors(t *testing.T) {
	cases := map[error]int{
		store.ErrProductNotFound:                   http.StatusNotFound,
		store.ErrSaleNotFound:                      http.StatusNotFound,
		&store.StockError{ProductID: 1}:            http.StatusConflict,
		store.ErrAbonoExceedsDebt:                  http.StatusConflict,
		store.ErrConflict:                          http.StatusConflict,
		store.ErrInvalidRequest:                    http.StatusBadRequest,
		store.Storage("query", errors.New("down")): http.StatusServiceUnavailable,
		errors.New("boom"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("statusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestServerErrorsHideDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeServiceError(rec, store.Storage("query", errors.New("dial tcp 10.0.0.3:5432")))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.3") {
		t.Fatalf("expected driver detail to stay out of the body, got %s", rec.Body.String())
	}
}

func TestStaticFilesServedWhenConfigured(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>bodega</h1>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	api := newTestAPIWithOptions(t, Options{AllowedOrigin: "*", StaticDir: dir})

	rec := doJSON(t, api.Handler(), http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "bodega") {
		t.Fatalf("expected index page, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, newTestAPI(t).Handler(), http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without static dir, got %d", rec.Code)
	}
}
