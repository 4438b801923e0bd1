package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Item describes a line item used for pricing calculation.
type Item struct {
	UnitPrice float64
	Quantity  int
}

// Summary aggregates computed pricing components, each rounded to cents.
type Summary struct {
	Subtotal    float64 `json:"itemsPrice"`
	ShippingFee float64 `json:"shippingPrice"`
	Tax         float64 `json:"taxPrice"`
	GrandTotal  float64 `json:"totalPrice"`
}

// Equal compares two summaries to the cent.
func (s Summary) Equal(o Summary) bool {
	return cents(s.Subtotal).Equal(cents(o.Subtotal)) &&
		cents(s.ShippingFee).Equal(cents(o.ShippingFee)) &&
		cents(s.Tax).Equal(cents(o.Tax)) &&
		cents(s.GrandTotal).Equal(cents(o.GrandTotal))
}

// Calculator holds the shipping and tax constants.
type Calculator struct {
	FreeShippingThreshold decimal.Decimal
	ShippingFee           decimal.Decimal
	TaxRate               decimal.Decimal
}

// Default returns the storefront's standard constants: free shipping above
// 100, otherwise a flat 10, and 15% tax.
func Default() Calculator {
	return Calculator{
		FreeShippingThreshold: decimal.NewFromInt(100),
		ShippingFee:           decimal.NewFromInt(10),
		TaxRate:               decimal.RequireFromString("0.15"),
	}
}

// New parses the textual configuration values.
func New(threshold, fee, rate string) (Calculator, error) {
	var c Calculator
	var err error
	if c.FreeShippingThreshold, err = decimal.NewFromString(threshold); err != nil {
		return Calculator{}, fmt.Errorf("free shipping threshold: %w", err)
	}
	if c.ShippingFee, err = decimal.NewFromString(fee); err != nil {
		return Calculator{}, fmt.Errorf("shipping fee: %w", err)
	}
	if c.TaxRate, err = decimal.NewFromString(rate); err != nil {
		return Calculator{}, fmt.Errorf("tax rate: %w", err)
	}
	if c.FreeShippingThreshold.IsNegative() || c.ShippingFee.IsNegative() || c.TaxRate.IsNegative() {
		return Calculator{}, fmt.Errorf("pricing constants must not be negative")
	}
	return c, nil
}

// Compute calculates cart totals. Items with a non-positive quantity or a
// negative price contribute nothing.
func (c Calculator) Compute(items []Item) Summary {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Quantity <= 0 || it.UnitPrice < 0 {
			continue
		}
		subtotal = subtotal.Add(decimal.NewFromFloat(it.UnitPrice).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)

	shipping := c.ShippingFee
	if subtotal.GreaterThan(c.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	shipping = shipping.Round(2)
	tax := subtotal.Mul(c.TaxRate).Round(2)
	total := subtotal.Add(shipping).Add(tax).Round(2)

	return Summary{
		Subtotal:    subtotal.InexactFloat64(),
		ShippingFee: shipping.InexactFloat64(),
		Tax:         tax.InexactFloat64(),
		GrandTotal:  total.InexactFloat64(),
	}
}

// FormatAmount renders a monetary value with exactly two decimals, the form
// payment providers expect.
func FormatAmount(v float64) string {
	return cents(v).StringFixed(2)
}

// ParseAmount parses a provider amount string.
func ParseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Round(2).InexactFloat64(), nil
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
