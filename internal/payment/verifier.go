package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/noah-isme/techshop-api/internal/order"
	"github.com/noah-isme/techshop-api/internal/pricing"
)

// Verifier checks a receipt sent by a client against the provider before
// the server marks an order paid.
type Verifier struct {
	Provider Provider
}

// VerifyCapture requires the provider order to be completed for exactly amount.
func (v Verifier) VerifyCapture(ctx context.Context, receipt order.PaymentResult, amount float64) error {
	if v.Provider == nil {
		return fmt.Errorf("payment verifier not configured")
	}
	c, err := v.Provider.Lookup(ctx, receipt.ID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", receipt.ID, err)
	}
	if !strings.EqualFold(c.Status, StatusCompleted) {
		return fmt.Errorf("%w: status %s", ErrNotCompleted, c.Status)
	}
	if pricing.FormatAmount(c.Amount) != pricing.FormatAmount(amount) {
		return fmt.Errorf("%w: captured %s, order %s", ErrAmountMismatch, pricing.FormatAmount(c.Amount), pricing.FormatAmount(amount))
	}
	return nil
}
