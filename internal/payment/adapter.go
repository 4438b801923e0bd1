package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/techshop-api/internal/obs"
	"github.com/noah-isme/techshop-api/internal/order"
)

// OrderPayer submits a capture receipt to the order API.
type OrderPayer interface {
	PayOrder(ctx context.Context, orderID string, receipt order.PaymentResult) (order.Order, error)
}

// Adapter drives one payment attempt from provider order creation to the
// server's mark-paid call. It keeps no state between attempts and never
// retries.
type Adapter struct {
	Provider Provider
	Approver Approver
	Orders   OrderPayer
	Currency string
	Log      zerolog.Logger
}

// Pay charges the order total. The returned Result is OutcomeCaptured with
// the updated order, OutcomeCreated when the buyer did not approve the
// provider order, or OutcomeFailed with the provider or server error.
func (a *Adapter) Pay(ctx context.Context, o order.Order) (res Result) {
	if a == nil || a.Provider == nil || a.Orders == nil {
		return failed(errors.New("payment adapter not configured"))
	}
	ctx, span := otel.Tracer("payment.Adapter").Start(ctx, "PaymentAdapter.Pay")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", o.ID), attribute.String("payment.provider", a.Provider.Name()))

	defer func() {
		obs.PaymentCaptureTotal.WithLabelValues(a.Provider.Name(), res.Outcome.String()).Inc()
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, "payment not captured")
			a.Log.Warn().Err(res.Err).Str("order_id", o.ID).Str("provider", a.Provider.Name()).Str("outcome", res.Outcome.String()).Msg("payment not captured")
		}
	}()

	if o.IsPaid {
		return failed(ErrAlreadyPaid)
	}
	currency := a.Currency
	if currency == "" {
		currency = "USD"
	}
	created, err := a.Provider.CreateOrder(ctx, o.TotalPrice, currency)
	if err != nil {
		return failed(fmt.Errorf("create payment: %w", err))
	}
	a.Log.Info().Str("order_id", o.ID).Str("provider_order_id", created.ProviderOrderID).Msg("payment created")

	approver := a.Approver
	if approver == nil {
		approver = AutoApprove
	}
	if err := approver.Approve(ctx, created); err != nil {
		return Result{
			Outcome:         OutcomeCreated,
			ProviderOrderID: created.ProviderOrderID,
			ApproveURL:      created.ApproveURL,
			Err:             fmt.Errorf("%w: %v", ErrNotApproved, err),
		}
	}

	captured, err := a.Provider.Capture(ctx, created.ProviderOrderID)
	if err != nil {
		res = failed(fmt.Errorf("capture payment: %w", err))
		res.ProviderOrderID = created.ProviderOrderID
		return res
	}

	updated, err := a.Orders.PayOrder(ctx, o.ID, captured.Receipt)
	if err != nil {
		res = failed(err)
		res.ProviderOrderID = created.ProviderOrderID
		res.Receipt = captured.Receipt
		return res
	}
	a.Log.Info().Str("order_id", o.ID).Str("capture_id", captured.Receipt.ID).Msg("payment captured")
	return Result{
		Outcome:         OutcomeCaptured,
		ProviderOrderID: created.ProviderOrderID,
		ApproveURL:      created.ApproveURL,
		Receipt:         captured.Receipt,
		Order:           updated,
	}
}
