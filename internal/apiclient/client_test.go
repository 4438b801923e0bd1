package apiclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/apiclient"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

func newServer(t *testing.T, mux *http.ServeMux) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL+"/api", 5*time.Second)
}

func TestLoginStoresToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/users/auth", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "jane@example.com", body["email"])
		common.JSON(w, http.StatusOK, map[string]any{"_id": "u1", "name": "Jane", "email": "jane@example.com", "isAdmin": false, "token": "tok"})
	})
	mux.HandleFunc("GET /api/orders/myorders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		common.JSON(w, http.StatusOK, []order.Order{{ID: "o1"}})
	})
	client := newServer(t, mux)

	session, err := client.Login(context.Background(), "jane@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "u1", session.ID)
	assert.Equal(t, "tok", client.Token)

	orders, err := client.MyOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0].ID)
}

func TestCreateOrderSendsIdempotencyKey(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get(common.IdempotencyHeader))
		var in order.CreateInput
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, 138.0, in.GrandTotal)
		common.JSON(w, http.StatusCreated, order.Order{ID: "o1", TotalPrice: in.GrandTotal})
	})
	client := newServer(t, mux)

	o, err := client.CreateOrder(context.Background(), "key-1", order.CreateInput{
		Items:         []order.LineItem{{ProductID: "p1", Name: "Headphones", Price: 60, Quantity: 2}},
		PaymentMethod: "PayPal",
		Summary:       &pricing.Summary{Subtotal: 120, Tax: 18, GrandTotal: 138},
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, 138.0, o.TotalPrice)
}

func TestServerMessageIsKeptVerbatim(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/orders/o1/pay", func(w http.ResponseWriter, r *http.Request) {
		common.JSONError(w, http.StatusConflict, "INVALID_STATE", "Order already paid", nil)
	})
	mux.HandleFunc("GET /api/orders/o2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	client := newServer(t, mux)

	_, err := client.PayOrder(context.Background(), "o1", order.PaymentResult{ID: "PAY", Status: "COMPLETED"})
	require.Error(t, err)
	var apiErr *apiclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "INVALID_STATE", apiErr.Code)
	assert.Equal(t, "Order already paid", err.Error())

	_, err = client.GetOrder(context.Background(), "o2")
	assert.Equal(t, http.StatusBadGateway, apiclient.StatusOf(err))
	assert.Equal(t, "upstream exploded", err.Error())
}

func TestCatalogAndConfigCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "phone", r.URL.Query().Get("keyword"))
		assert.Equal(t, "2", r.URL.Query().Get("pageNumber"))
		common.JSON(w, http.StatusOK, map[string]any{"products": []map[string]any{{"_id": "p1", "name": "Phone"}}, "page": 2, "pages": 3, "total": 25})
	})
	mux.HandleFunc("GET /api/config/paypal", func(w http.ResponseWriter, r *http.Request) {
		common.JSON(w, http.StatusOK, map[string]string{"clientId": "sb-client"})
	})
	mux.HandleFunc("PUT /api/orders/o1/deliver", func(w http.ResponseWriter, r *http.Request) {
		common.JSON(w, http.StatusOK, order.Order{ID: "o1", IsPaid: true, IsDelivered: true})
	})
	client := newServer(t, mux)

	page, err := client.Products(context.Background(), "phone", 2)
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, 3, page.Pages)

	id, err := client.PayPalClientID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sb-client", id)

	o, err := client.DeliverOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, o.IsDelivered)
}
