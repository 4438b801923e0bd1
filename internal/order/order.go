package order

import (
	"context"
	"errors"
	"time"

	"github.com/noah-isme/techshop-api/internal/pricing"
)

var (
	ErrNotFound           = errors.New("order not found")
	ErrNoItems            = errors.New("no order items")
	ErrTotalsMismatch     = errors.New("order totals do not match items")
	ErrAlreadyPaid        = errors.New("order already paid")
	ErrNotPaid            = errors.New("order is not paid")
	ErrAlreadyDelivered   = errors.New("order already delivered")
	ErrPaymentUnverified  = errors.New("payment could not be verified")
	ErrReceiptUsed        = errors.New("payment receipt already recorded on another order")
	ErrDuplicateKey       = errors.New("duplicate idempotency key")
	ErrTransitionRejected = errors.New("status transition rejected")
)

// Address is the shipping destination of an order.
type Address struct {
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// LineItem is the snapshot of a cart line taken when the order was placed.
type LineItem struct {
	ProductID string  `json:"product" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Image     string  `json:"image"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"qty" validate:"gt=0"`
}

// PaymentResult is the provider capture receipt stored on a paid order.
type PaymentResult struct {
	ID           string `json:"id" validate:"required"`
	Status       string `json:"status" validate:"required"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

// Order is a placed order. Items, address, method and prices never change
// after creation; the paid and delivered flags only move forward.
type Order struct {
	ID              string         `json:"_id"`
	UserID          string         `json:"user"`
	Items           []LineItem     `json:"orderItems"`
	ShippingAddress Address        `json:"shippingAddress"`
	PaymentMethod   string         `json:"paymentMethod"`
	PaymentResult   *PaymentResult `json:"paymentResult,omitempty"`
	ItemsPrice      float64        `json:"itemsPrice"`
	ShippingPrice   float64        `json:"shippingPrice"`
	TaxPrice        float64        `json:"taxPrice"`
	TotalPrice      float64        `json:"totalPrice"`
	IsPaid          bool           `json:"isPaid"`
	PaidAt          *time.Time     `json:"paidAt,omitempty"`
	IsDelivered     bool           `json:"isDelivered"`
	DeliveredAt     *time.Time     `json:"deliveredAt,omitempty"`
	IdempotencyKey  string         `json:"-"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Summary returns the stored totals.
func (o Order) Summary() pricing.Summary {
	return pricing.Summary{
		Subtotal:    o.ItemsPrice,
		ShippingFee: o.ShippingPrice,
		Tax:         o.TaxPrice,
		GrandTotal:  o.TotalPrice,
	}
}

// CreateInput is the order submission body. Summary stays nil unless the
// body carried at least one of the totals fields, so omitted totals and
// totals submitted as zero are told apart.
type CreateInput struct {
	Items           []LineItem `json:"orderItems" validate:"dive"`
	ShippingAddress Address    `json:"shippingAddress"`
	PaymentMethod   string     `json:"paymentMethod" validate:"required"`
	*pricing.Summary
}

// Viewer identifies who is asking for an order.
type Viewer struct {
	UserID string
	Admin  bool
}

// CanSee reports whether the viewer owns the order or is an administrator.
func (v Viewer) CanSee(o Order) bool {
	return v.Admin || (v.UserID != "" && v.UserID == o.UserID)
}

// ListQuery pages through all orders, newest first.
type ListQuery struct {
	Offset int
	Limit  int
}

// Repository persists orders. MarkPaid and MarkDelivered are conditional
// updates that return ErrTransitionRejected when the stored flags do not
// allow the transition. A capture id pays at most one order: MarkPaid
// returns ErrReceiptUsed when another order already holds receipt.ID.
type Repository interface {
	Insert(ctx context.Context, o Order) (Order, error)
	FindByID(ctx context.Context, id string) (Order, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	List(ctx context.Context, q ListQuery) ([]Order, int64, error)
	MarkPaid(ctx context.Context, id string, at time.Time, receipt PaymentResult) (Order, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) (Order, error)
	Delete(ctx context.Context, id string) error
}
