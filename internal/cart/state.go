package cart

import (
	"errors"

	"github.com/noah-isme/techshop-api/internal/pricing"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be between 1 and the available stock")
	ErrInvalidItem     = errors.New("item requires a product and a non-negative price")
	ErrUnknownMethod   = errors.New("unsupported payment method")
	ErrUnknownAction   = errors.New("unknown cart action")
)

// Payment methods offered at checkout.
const (
	MethodPayPal     = "PayPal"
	MethodStripe     = "Stripe"
	MethodCreditCard = "Credit Card"
)

// DefaultPaymentMethod is preselected when nothing was saved.
const DefaultPaymentMethod = MethodPayPal

// PaymentMethods lists the selectable methods in display order.
var PaymentMethods = []string{MethodPayPal, MethodStripe, MethodCreditCard}

// Item is one product line in the cart.
type Item struct {
	ProductID      string  `json:"product"`
	Name           string  `json:"name"`
	Image          string  `json:"image"`
	Price          float64 `json:"price"`
	Quantity       int     `json:"qty"`
	AvailableStock int     `json:"countInStock"`
}

// Address is the shipping destination entered at checkout.
type Address struct {
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Complete reports whether every field is present.
func (a Address) Complete() bool {
	return a.Address != "" && a.City != "" && a.PostalCode != "" && a.Country != ""
}

// State is the full cart. Totals are derived from Items by the reducer and
// are never set directly.
type State struct {
	Items           []Item          `json:"cartItems"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	PendingOrderKey string          `json:"pendingOrderKey,omitempty"`
	Totals          pricing.Summary `json:"totals"`
}

// Empty reports whether the cart has no items.
func (s State) Empty() bool { return len(s.Items) == 0 }

// Item returns the line for productID.
func (s State) Item(productID string) (Item, bool) {
	for _, it := range s.Items {
		if it.ProductID == productID {
			return it, true
		}
	}
	return Item{}, false
}

// Count returns the number of units across all lines.
func (s State) Count() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

// PricingItems converts the lines for the price calculator.
func (s State) PricingItems() []pricing.Item {
	out := make([]pricing.Item, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, pricing.Item{UnitPrice: it.Price, Quantity: it.Quantity})
	}
	return out
}

func (s State) clone() State {
	s.Items = append([]Item(nil), s.Items...)
	if s.ShippingAddress != nil {
		addr := *s.ShippingAddress
		s.ShippingAddress = &addr
	}
	return s
}
