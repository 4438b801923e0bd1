package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/pricing"
	"github.com/noah-isme/techshop-api/internal/resilience"
)

// SandboxBaseURL is the PayPal REST sandbox host.
const SandboxBaseURL = "https://api-m.sandbox.paypal.com"

// PayPalOptions configures NewPayPal.
type PayPalOptions struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	Timeout      time.Duration
	Breaker      *resilience.Breaker
	// Transport overrides the network transport, mainly for tests.
	Transport http.RoundTripper
}

// PayPal talks to the PayPal REST v2 Orders API.
type PayPal struct {
	baseURL string
	http    resilience.HTTPClient
}

// ProviderError is a non-2xx answer from PayPal.
type ProviderError struct {
	Status  int
	Name    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("paypal: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("paypal: status %d %s: %s", e.Status, e.Name, e.Message)
}

// NewPayPal builds the provider. Access tokens are fetched with the client
// credentials grant and cached until they expire.
func NewPayPal(opts PayPalOptions) (*PayPal, error) {
	if strings.TrimSpace(opts.ClientID) == "" || strings.TrimSpace(opts.ClientSecret) == "" {
		return nil, errors.New("paypal: client id and secret are required")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = SandboxBaseURL
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	tokenClient := &http.Client{Transport: otelhttp.NewTransport(transport), Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenClient)
	creds := clientcredentials.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	return &PayPal{
		baseURL: base,
		http: resilience.HTTPClient{
			Client:  creds.Client(ctx),
			Breaker: opts.Breaker,
			Timeout: timeout,
		},
	}, nil
}

func (p *PayPal) Name() string { return "paypal" }

type ppAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type ppLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type ppCapture struct {
	ID         string   `json:"id"`
	Status     string   `json:"status"`
	Amount     ppAmount `json:"amount"`
	UpdateTime string   `json:"update_time"`
}

type ppOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Payer  struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Amount   ppAmount `json:"amount"`
		Payments struct {
			Captures []ppCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	UpdateTime string   `json:"update_time"`
	Links      []ppLink `json:"links"`
}

func (o ppOrder) approveURL() string {
	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			return l.Href
		}
	}
	return ""
}

// capture returns the first capture and the purchase unit amount.
func (o ppOrder) capture() (ppCapture, ppAmount) {
	if len(o.PurchaseUnits) == 0 {
		return ppCapture{}, ppAmount{}
	}
	pu := o.PurchaseUnits[0]
	if len(pu.Payments.Captures) == 0 {
		return ppCapture{}, pu.Amount
	}
	return pu.Payments.Captures[0], pu.Amount
}

func (p *PayPal) CreateOrder(ctx context.Context, amount float64, currency string) (Result, error) {
	if amount <= 0 {
		return Result{}, fmt.Errorf("paypal: amount must be positive, got %v", amount)
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": ppAmount{CurrencyCode: strings.ToUpper(currency), Value: pricing.FormatAmount(amount)},
		}},
	}
	var out ppOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", "", body, &out); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeCreated, ProviderOrderID: out.ID, ApproveURL: out.approveURL()}, nil
}

func (p *PayPal) Capture(ctx context.Context, providerOrderID string) (Result, error) {
	var out ppOrder
	path := "/v2/checkout/orders/" + url.PathEscape(providerOrderID) + "/capture"
	if err := p.do(ctx, http.MethodPost, path, "capture-"+providerOrderID, struct{}{}, &out); err != nil {
		return Result{}, err
	}
	c, _ := out.capture()
	updated := c.UpdateTime
	if updated == "" {
		updated = out.UpdateTime
	}
	res := Result{
		Outcome:         OutcomeCaptured,
		ProviderOrderID: out.ID,
		Receipt: order.PaymentResult{
			ID:           out.ID,
			Status:       out.Status,
			UpdateTime:   updated,
			EmailAddress: out.Payer.EmailAddress,
		},
	}
	if out.Status != StatusCompleted {
		err := fmt.Errorf("%w: status %s", ErrNotCompleted, out.Status)
		res.Outcome = OutcomeFailed
		res.Err = err
		return res, err
	}
	return res, nil
}

func (p *PayPal) Lookup(ctx context.Context, providerOrderID string) (Capture, error) {
	var out ppOrder
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(providerOrderID), "", nil, &out); err != nil {
		return Capture{}, err
	}
	c, unit := out.capture()
	amount := c.Amount
	if amount.Value == "" {
		amount = unit
	}
	value, err := pricing.ParseAmount(amount.Value)
	if err != nil {
		return Capture{}, fmt.Errorf("paypal: parse amount %q: %w", amount.Value, err)
	}
	return Capture{
		ID:         out.ID,
		Status:     out.Status,
		Amount:     value,
		Currency:   amount.CurrencyCode,
		PayerEmail: out.Payer.EmailAddress,
		UpdateTime: c.UpdateTime,
	}, nil
}

func (p *PayPal) do(ctx context.Context, method, path, requestID string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	resp, err := p.http.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("paypal %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Status: resp.StatusCode, Name: apiErr.Name, Message: apiErr.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("paypal: decode %s: %w", path, err)
	}
	return nil
}
