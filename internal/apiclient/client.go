// Package apiclient is a typed client for the storefront REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/techshop-api/internal/auth"
	"github.com/noah-isme/techshop-api/internal/catalog"
	"github.com/noah-isme/techshop-api/internal/common"
	"github.com/noah-isme/techshop-api/internal/order"
)

// APIError is a non-2xx answer. Message is the server's message verbatim.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return e.Message
}

// Client talks to the API under BaseURL, e.g. http://localhost:8080/api.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is sent as a bearer token when set.
	Token string
}

// New returns a client with a traced transport.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// StatusOf returns the HTTP status of an APIError, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Message
			apiErr.Code = payload.Code
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login signs in and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (auth.SessionResponse, error) {
	var out auth.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/users/auth", nil, credentials{Email: email, Password: password}, &out); err != nil {
		return auth.SessionResponse{}, err
	}
	c.Token = out.Token
	return out, nil
}

// Register creates an account and stores the returned token on the client.
func (c *Client) Register(ctx context.Context, name, email, password string) (auth.SessionResponse, error) {
	var out auth.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/users", nil, credentials{Name: name, Email: email, Password: password}, &out); err != nil {
		return auth.SessionResponse{}, err
	}
	c.Token = out.Token
	return out, nil
}

// Products searches the catalog by keyword.
func (c *Client) Products(ctx context.Context, keyword string, page int) (catalog.ProductPage, error) {
	q := url.Values{}
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	if page > 1 {
		q.Set("pageNumber", strconv.Itoa(page))
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out catalog.ProductPage
	err := c.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

// Product fetches one product.
func (c *Client) Product(ctx context.Context, id string) (catalog.Product, error) {
	var out catalog.Product
	err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Categories lists categories with their product counts.
func (c *Client) Categories(ctx context.Context) ([]catalog.CategorySummary, error) {
	var out []catalog.CategorySummary
	err := c.do(ctx, http.MethodGet, "/categories", nil, nil, &out)
	return out, err
}

// CreateOrder submits an order. The same key always yields the same order.
func (c *Client) CreateOrder(ctx context.Context, idempotencyKey string, in order.CreateInput) (order.Order, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(common.IdempotencyHeader, idempotencyKey)
	}
	var out order.Order
	err := c.do(ctx, http.MethodPost, "/orders", header, in, &out)
	return out, err
}

// GetOrder fetches an order the caller may see.
func (c *Client) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var out order.Order
	err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// MyOrders lists the caller's orders.
func (c *Client) MyOrders(ctx context.Context) ([]order.Order, error) {
	var out []order.Order
	err := c.do(ctx, http.MethodGet, "/orders/myorders", nil, nil, &out)
	return out, err
}

// OrderPage is one page of the admin order list.
type OrderPage struct {
	Orders []order.Order `json:"orders"`
	common.Page
}

// ListOrders pages through every order. Admin only.
func (c *Client) ListOrders(ctx context.Context, page int) (OrderPage, error) {
	path := "/orders"
	if page > 1 {
		path += "?pageNumber=" + strconv.Itoa(page)
	}
	var out OrderPage
	err := c.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

// PayOrder records a capture receipt.
func (c *Client) PayOrder(ctx context.Context, id string, receipt order.PaymentResult) (order.Order, error) {
	var out order.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/pay", nil, receipt, &out)
	return out, err
}

// DeliverOrder marks a paid order delivered. Admin only.
func (c *Client) DeliverOrder(ctx context.Context, id string) (order.Order, error) {
	var out order.Order
	err := c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/deliver", nil, nil, &out)
	return out, err
}

// PayPalClientID returns the public client id served by the API.
func (c *Client) PayPalClientID(ctx context.Context) (string, error) {
	var out struct {
		ClientID string `json:"clientId"`
	}
	err := c.do(ctx, http.MethodGet, "/config/paypal", nil, nil, &out)
	return out.ClientID, err
}
