package cart

import (
	"fmt"
	"strings"

	"github.com/noah-isme/techshop-api/internal/pricing"
)

// Action is a cart mutation request.
type Action interface {
	actionName() string
}

// AddItem puts a product in the cart. A product already in the cart gets
// its quantity replaced by Item.Quantity.
type AddItem struct{ Item Item }

// RemoveItem drops the line for ProductID.
type RemoveItem struct{ ProductID string }

// SetShippingAddress stores the address verbatim.
type SetShippingAddress struct{ Address Address }

// SetPaymentMethod stores the selected method.
type SetPaymentMethod struct{ Method string }

// BeginSubmission records the idempotency key of an order submission so a
// retry reuses it. Any later change to the cart discards the key.
type BeginSubmission struct{ Key string }

// Clear empties the items and forgets the pending submission. Address and
// payment method are kept for the next checkout.
type Clear struct{}

// Hydrate replaces the state with a previously persisted one.
type Hydrate struct{ State State }

func (AddItem) actionName() string            { return "add_item" }
func (RemoveItem) actionName() string         { return "remove_item" }
func (SetShippingAddress) actionName() string { return "set_shipping_address" }
func (SetPaymentMethod) actionName() string   { return "set_payment_method" }
func (BeginSubmission) actionName() string    { return "begin_submission" }
func (Clear) actionName() string              { return "clear" }
func (Hydrate) actionName() string            { return "hydrate" }

// ActionName returns a stable label for logs.
func ActionName(a Action) string {
	if a == nil {
		return "nil"
	}
	return a.actionName()
}

// Reduce applies action to state and returns the new state. It has no side
// effects and never modifies its input.
func Reduce(calc pricing.Calculator, state State, action Action) (State, error) {
	next := state.clone()
	switch a := action.(type) {
	case AddItem:
		it := a.Item
		it.ProductID = strings.TrimSpace(it.ProductID)
		if it.ProductID == "" || it.Price < 0 {
			return state, ErrInvalidItem
		}
		if it.Quantity <= 0 || it.Quantity > it.AvailableStock {
			return state, fmt.Errorf("%w: got %d, stock %d", ErrInvalidQuantity, it.Quantity, it.AvailableStock)
		}
		replaced := false
		for i := range next.Items {
			if next.Items[i].ProductID == it.ProductID {
				next.Items[i] = it
				replaced = true
				break
			}
		}
		if !replaced {
			next.Items = append(next.Items, it)
		}
		next.PendingOrderKey = ""
	case RemoveItem:
		kept := next.Items[:0]
		for _, it := range next.Items {
			if it.ProductID != a.ProductID {
				kept = append(kept, it)
			}
		}
		next.Items = kept
		next.PendingOrderKey = ""
	case SetShippingAddress:
		addr := a.Address
		next.ShippingAddress = &addr
		next.PendingOrderKey = ""
	case SetPaymentMethod:
		if !knownMethod(a.Method) {
			return state, fmt.Errorf("%w: %q", ErrUnknownMethod, a.Method)
		}
		next.PaymentMethod = a.Method
		next.PendingOrderKey = ""
	case BeginSubmission:
		next.PendingOrderKey = a.Key
	case Clear:
		next.Items = nil
		next.PendingOrderKey = ""
	case Hydrate:
		next = a.State.clone()
	default:
		return state, fmt.Errorf("%w: %T", ErrUnknownAction, action)
	}
	next.Totals = calc.Compute(next.PricingItems())
	return next, nil
}

func knownMethod(m string) bool {
	for _, known := range PaymentMethods {
		if m == known {
			return true
		}
	}
	return false
}
