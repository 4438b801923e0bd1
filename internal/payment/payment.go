package payment

import (
	"context"
	"errors"

	"github.com/noah-isme/techshop-api/internal/order"
)

// Outcome is the state a payment attempt ended in.
type Outcome int

const (
	// OutcomeCreated means the provider order exists but the buyer has not
	// approved it. Adapter.Pay ends here, with Err set to ErrNotApproved,
	// when approval is declined or abandoned. Nothing was charged.
	OutcomeCreated Outcome = iota
	// OutcomeCaptured means the funds were captured and the server accepted the receipt.
	OutcomeCaptured
	// OutcomeFailed means the attempt stopped; Result.Err says why.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeCaptured:
		return "captured"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusCompleted is the provider status of a successful capture.
const StatusCompleted = "COMPLETED"

var (
	ErrNotApproved    = errors.New("payment was not approved by the buyer")
	ErrNotCompleted   = errors.New("capture is not completed")
	ErrAmountMismatch = errors.New("captured amount does not match the order total")
	ErrUnknownOrder   = errors.New("unknown provider order")
	ErrAlreadyPaid    = errors.New("order is already paid")
)

// Result is what a provider call or a full payment attempt produced.
type Result struct {
	Outcome         Outcome
	ProviderOrderID string
	ApproveURL      string
	Receipt         order.PaymentResult
	// Order is the server's view of the order after a successful capture.
	Order order.Order
	Err   error
}

func failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}

// Capture is a provider's record of a payment.
type Capture struct {
	ID         string
	Status     string
	Amount     float64
	Currency   string
	PayerEmail string
	UpdateTime string
}

// Provider is an external payment provider with an authorize and capture flow.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, amount float64, currency string) (Result, error)
	Capture(ctx context.Context, providerOrderID string) (Result, error)
	Lookup(ctx context.Context, providerOrderID string) (Capture, error)
}

// Approver stands in for the buyer between order creation and capture.
type Approver interface {
	Approve(ctx context.Context, created Result) error
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, created Result) error

func (f ApproverFunc) Approve(ctx context.Context, created Result) error { return f(ctx, created) }

// AutoApprove approves immediately. It pairs with the sandbox provider.
var AutoApprove Approver = ApproverFunc(func(context.Context, Result) error { return nil })
