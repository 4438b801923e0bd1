package checkout

import (
	"fmt"
	"strings"

	"github.com/noah-isme/techshop-api/internal/cart"
)

// Step is a checkout stage. Steps are ordered; each requires the previous
// ones to be satisfied.
type Step int

const (
	StepCart Step = iota
	StepShipping
	StepPayment
	StepReview
	StepPlaced
	StepPaid
	StepDelivered
)

var stepNames = [...]string{"cart", "shipping", "payment", "placeorder", "order", "paid", "delivered"}

// String returns the route name of the step.
func (s Step) String() string {
	if s < StepCart || s > StepDelivered {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// ParseStep maps a route name back to its step.
func ParseStep(name string) (Step, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stepNames {
		if n == name {
			return Step(i), nil
		}
	}
	return 0, fmt.Errorf("unknown checkout step %q", name)
}

// Resolve returns the step the buyer may actually enter when asking for
// requested: the earliest step whose prerequisite is missing, or requested
// itself. Steps after Review only need the cart to be reviewable.
func Resolve(st cart.State, requested Step) Step {
	if requested >= StepShipping && st.Empty() {
		return StepCart
	}
	if requested > StepShipping && (st.ShippingAddress == nil || !st.ShippingAddress.Complete()) {
		return StepShipping
	}
	if requested > StepPayment && st.PaymentMethod == "" {
		return StepPayment
	}
	return requested
}

// StepError reports a step entered before its prerequisites were met.
type StepError struct {
	Requested Step
	Redirect  Step
}

func (e *StepError) Error() string {
	return fmt.Sprintf("checkout: cannot enter %s before completing %s", e.Requested, e.Redirect)
}
