package order_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/order"
)

func withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Test-User"); id != "" {
			ctx = common.WithUserID(ctx, id)
			ctx = common.WithAdmin(ctx, r.Header.Get("X-Test-Admin") == "1")
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRouter(t *testing.T) (http.Handler, *order.Service) {
	t.Helper()
	svc, _, _ := newService(t)
	h := &order.Handler{Svc: svc}
	admin := &order.AdminHandler{Svc: svc, PageSize: 2}
	r := chi.NewRouter()
	r.Use(withPrincipal)
	r.Post("/orders", h.Create)
	r.Get("/orders", admin.List)
	r.Get("/orders/myorders", h.Mine)
	r.Get("/orders/{id}", h.Get)
	r.Put("/orders/{id}/pay", h.Pay)
	r.Put("/orders/{id}/deliver", admin.Deliver)
	r.Delete("/orders/{id}", admin.Purge)
	return r, svc
}

func do(t *testing.T, h http.Handler, method, path, user string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, _ := newRouter(t)
	body := map[string]any{
		"orderItems":      []map[string]any{{"product": "p1", "name": "Headphones", "qty": 2, "price": 60, "image": "/img.jpg"}},
		"shippingAddress": map[string]string{"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US"},
		"paymentMethod":   "PayPal",
		"itemsPrice":      120,
		"shippingPrice":   0,
		"taxPrice":        18,
		"totalPrice":      138,
	}
	rec := do(t, router, http.MethodPost, "/orders", "u1", body, map[string]string{common.IdempotencyHeader: "k1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	require.NotEmpty(t, created["_id"])
	require.Equal(t, "u1", created["user"])
	require.Equal(t, float64(138), created["totalPrice"])
	require.Equal(t, false, created["isPaid"])
	require.NotContains(t, created, "paidAt")

	replay := do(t, router, http.MethodPost, "/orders", "u1", body, map[string]string{common.IdempotencyHeader: "k1"})
	require.Equal(t, http.StatusOK, replay.Code)
	require.Equal(t, created["_id"], decode[map[string]any](t, replay)["_id"])
}

func TestCreateOrderTotalsPresence(t *testing.T) {
	router, _ := newRouter(t)
	body := func(totals map[string]any) map[string]any {
		b := map[string]any{
			"orderItems":      []map[string]any{{"product": "p1", "name": "Headphones", "qty": 2, "price": 60}},
			"shippingAddress": map[string]string{"address": "1 Main St", "city": "Springfield", "postalCode": "12345", "country": "US"},
			"paymentMethod":   "PayPal",
		}
		for k, v := range totals {
			b[k] = v
		}
		return b
	}

	zeros := map[string]any{"itemsPrice": 0, "shippingPrice": 0, "taxPrice": 0, "totalPrice": 0}
	rec := do(t, router, http.MethodPost, "/orders", "u1", body(zeros), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Order totals do not match the items", decode[common.ErrorBody](t, rec).Message)

	rec = do(t, router, http.MethodPost, "/orders", "u1", body(map[string]any{"totalPrice": 138}), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "a partial set of totals is checked too")

	rec = do(t, router, http.MethodPost, "/orders", "u1", body(nil), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, float64(138), decode[map[string]any](t, rec)["totalPrice"])
}

func TestCreateOrderEmptyItems(t *testing.T) {
	router, _ := newRouter(t)
	rec := do(t, router, http.MethodPost, "/orders", "u1", map[string]any{"orderItems": []any{}, "paymentMethod": "PayPal"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "No order items", decode[common.ErrorBody](t, rec).Message)
}

func TestCreateOrderRequiresUser(t *testing.T) {
	router, _ := newRouter(t)
	rec := do(t, router, http.MethodPost, "/orders", "", map[string]any{}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrderEndpoint(t *testing.T) {
	router, svc := newRouter(t)
	o, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
	require.NoError(t, err)

	rec := do(t, router, http.MethodGet, "/orders/"+o.ID, "u1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[order.Order](t, rec)
	require.Equal(t, o.ID, got.ID)
	require.Equal(t, o.Items, got.Items)

	rec = do(t, router, http.MethodGet, "/orders/"+o.ID, "u2", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Order not found", decode[common.ErrorBody](t, rec).Message)
}

func TestMyOrdersEndpoint(t *testing.T) {
	router, svc := newRouter(t)
	rec := do(t, router, http.MethodGet, "/orders/myorders", "u1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())

	_, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
	require.NoError(t, err)
	rec = do(t, router, http.MethodGet, "/orders/myorders", "u1", nil, nil)
	require.Len(t, decode[[]order.Order](t, rec), 1)
}

func TestPayEndpointAcceptsCaptureDetails(t *testing.T) {
	router, svc := newRouter(t)
	o, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
	require.NoError(t, err)

	details := map[string]any{
		"id":          "5O190127TN364715T",
		"status":      "COMPLETED",
		"update_time": "2026-03-01T12:00:00Z",
		"payer":       map[string]string{"email_address": "buyer@example.com"},
	}
	rec := do(t, router, http.MethodPut, "/orders/"+o.ID+"/pay", "u1", details, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decode[order.Order](t, rec)
	require.True(t, paid.IsPaid)
	require.Equal(t, "buyer@example.com", paid.PaymentResult.EmailAddress)

	rec = do(t, router, http.MethodPut, "/orders/"+o.ID+"/pay", "u1", details, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Order already paid", decode[common.ErrorBody](t, rec).Message)
}

func TestDeliverEndpoint(t *testing.T) {
	router, svc := newRouter(t)
	o, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
	require.NoError(t, err)

	rec := do(t, router, http.MethodPut, "/orders/"+o.ID+"/deliver", "admin", nil, map[string]string{"X-Test-Admin": "1"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Order is not paid", decode[common.ErrorBody](t, rec).Message)

	_, err = svc.MarkPaid(t.Context(), o.ID, order.Viewer{UserID: "u1"}, order.PaymentResult{ID: "c", Status: "COMPLETED"})
	require.NoError(t, err)
	rec = do(t, router, http.MethodPut, "/orders/"+o.ID+"/deliver", "admin", nil, map[string]string{"X-Test-Admin": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[order.Order](t, rec).IsDelivered)
}

func TestAdminListEndpoint(t *testing.T) {
	router, svc := newRouter(t)
	for i := 0; i < 3; i++ {
		_, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
		require.NoError(t, err)
	}
	rec := do(t, router, http.MethodGet, "/orders?pageNumber=2", "admin", nil, map[string]string{"X-Test-Admin": "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Orders []order.Order `json:"orders"`
		Page   int           `json:"page"`
		Pages  int           `json:"pages"`
		Total  int           `json:"total"`
	}](t, rec)
	require.Len(t, body.Orders, 1)
	require.Equal(t, 2, body.Page)
	require.Equal(t, 2, body.Pages)
	require.Equal(t, 3, body.Total)
}

func TestPurgeEndpoint(t *testing.T) {
	router, svc := newRouter(t)
	o, _, err := svc.Create(t.Context(), "u1", "", sampleInput())
	require.NoError(t, err)
	rec := do(t, router, http.MethodDelete, "/orders/"+o.ID, "admin", nil, map[string]string{"X-Test-Admin": "1"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodDelete, "/orders/"+o.ID, "admin", nil, map[string]string{"X-Test-Admin": "1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlersWithoutService(t *testing.T) {
	h := &order.Handler{}
	rec := httptest.NewRecorder()
	h.Create(rec, httptest.NewRequest(http.MethodPost, "/orders", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
