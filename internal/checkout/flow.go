package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/techshop-api/internal/cart"
	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/payment"
)

var (
	ErrNotAdmin       = errors.New("only administrators can mark orders delivered")
	ErrCartNotCleared = errors.New("order placed but the cart could not be cleared")
)

// OrderAPI is the server side of checkout.
type OrderAPI interface {
	CreateOrder(ctx context.Context, idempotencyKey string, in order.CreateInput) (order.Order, error)
	DeliverOrder(ctx context.Context, orderID string) (order.Order, error)
}

// Payer runs one payment attempt for an order.
type Payer interface {
	Pay(ctx context.Context, o order.Order) payment.Result
}

// Flow drives a buyer through checkout. Failures leave cart and order
// untouched and are returned as is; nothing is retried automatically.
type Flow struct {
	Cart     *cart.Store
	Orders   OrderAPI
	Payments Payer
	NewKey   func() string
	Log      zerolog.Logger
}

func (f *Flow) newKey() string {
	if f.NewKey != nil {
		return f.NewKey()
	}
	return uuid.NewString()
}

// Enter resolves the step the buyer lands on when requesting step.
func (f *Flow) Enter(step Step) Step {
	return Resolve(f.Cart.State(), step)
}

// PlaceOrder submits the cart. The idempotency key is persisted with the
// cart before the request goes out, so submitting again after a lost
// response returns the same order. The cart is cleared on success.
func (f *Flow) PlaceOrder(ctx context.Context) (order.Order, error) {
	if f.Cart == nil || f.Orders == nil {
		return order.Order{}, errors.New("checkout flow not configured")
	}
	st := f.Cart.State()
	if step := Resolve(st, StepPlaced); step != StepPlaced {
		return order.Order{}, &StepError{Requested: StepPlaced, Redirect: step}
	}
	if st.PendingOrderKey == "" {
		var err error
		st, err = f.Cart.Dispatch(cart.BeginSubmission{Key: f.newKey()})
		if err != nil {
			return order.Order{}, fmt.Errorf("save submission key: %w", err)
		}
	}
	o, err := f.Orders.CreateOrder(ctx, st.PendingOrderKey, Snapshot(st))
	if err != nil {
		f.Log.Warn().Err(err).Str("idempotency_key", st.PendingOrderKey).Msg("place order failed")
		return order.Order{}, err
	}
	f.Log.Info().Str("order_id", o.ID).Float64("total", o.TotalPrice).Msg("order placed")
	if _, err := f.Cart.Dispatch(cart.Clear{}); err != nil {
		return o, fmt.Errorf("%w: %v", ErrCartNotCleared, err)
	}
	return o, nil
}

// Snapshot converts the cart into an order submission.
func Snapshot(st cart.State) order.CreateInput {
	totals := st.Totals
	in := order.CreateInput{
		Items:         make([]order.LineItem, 0, len(st.Items)),
		PaymentMethod: st.PaymentMethod,
		Summary:       &totals,
	}
	for _, it := range st.Items {
		in.Items = append(in.Items, order.LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}
	if st.ShippingAddress != nil {
		a := st.ShippingAddress
		in.ShippingAddress = order.Address{Address: a.Address, City: a.City, PostalCode: a.PostalCode, Country: a.Country}
	}
	return in
}

// Pay charges an unpaid order.
func (f *Flow) Pay(ctx context.Context, o order.Order) payment.Result {
	if o.IsPaid {
		return payment.Result{Outcome: payment.OutcomeFailed, Err: payment.ErrAlreadyPaid}
	}
	if f.Payments == nil {
		return payment.Result{Outcome: payment.OutcomeFailed, Err: errors.New("payments not configured")}
	}
	return f.Payments.Pay(ctx, o)
}

// Deliver marks a paid order delivered on behalf of an administrator.
func (f *Flow) Deliver(ctx context.Context, o order.Order, viewer order.Viewer) (order.Order, error) {
	if !viewer.Admin {
		return order.Order{}, ErrNotAdmin
	}
	if !o.IsPaid {
		return order.Order{}, order.ErrNotPaid
	}
	if o.IsDelivered {
		return order.Order{}, order.ErrAlreadyDelivered
	}
	if f.Orders == nil {
		return order.Order{}, errors.New("checkout flow not configured")
	}
	return f.Orders.DeliverOrder(ctx, o.ID)
}

// OrderView is what the order screen offers the viewer.
type OrderView struct {
	Step       Step
	CanPay     bool
	CanDeliver bool
}

// View reports where the order stands and which actions are open.
func View(o order.Order, viewer order.Viewer) OrderView {
	v := OrderView{Step: StepPlaced}
	switch {
	case o.IsDelivered:
		v.Step = StepDelivered
	case o.IsPaid:
		v.Step = StepPaid
	}
	v.CanPay = !o.IsPaid && viewer.CanSee(o)
	v.CanDeliver = viewer.Admin && o.IsPaid && !o.IsDelivered
	return v
}
