package pricing_test

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/pricing"
)

func TestComputeScenarios(t *testing.T) {
	calc := pricing.Default()
	cases := []struct {
		name  string
		items []pricing.Item
		want  pricing.Summary
	}{
		{
			name:  "free shipping above threshold",
			items: []pricing.Item{{UnitPrice: 60, Quantity: 2}},
			want:  pricing.Summary{Subtotal: 120, ShippingFee: 0, Tax: 18, GrandTotal: 138},
		},
		{
			name:  "flat fee below threshold",
			items: []pricing.Item{{UnitPrice: 20, Quantity: 1}},
			want:  pricing.Summary{Subtotal: 20, ShippingFee: 10, Tax: 3, GrandTotal: 33},
		},
		{
			name:  "threshold itself still pays shipping",
			items: []pricing.Item{{UnitPrice: 50, Quantity: 2}},
			want:  pricing.Summary{Subtotal: 100, ShippingFee: 10, Tax: 15, GrandTotal: 125},
		},
		{
			name:  "cents round half away from zero",
			items: []pricing.Item{{UnitPrice: 0.1, Quantity: 1}, {UnitPrice: 0.2, Quantity: 1}},
			want:  pricing.Summary{Subtotal: 0.3, ShippingFee: 10, Tax: 0.05, GrandTotal: 10.35},
		},
		{
			name:  "empty cart",
			items: nil,
			want:  pricing.Summary{Subtotal: 0, ShippingFee: 10, Tax: 0, GrandTotal: 10},
		},
		{
			name:  "invalid lines are ignored",
			items: []pricing.Item{{UnitPrice: 20, Quantity: 0}, {UnitPrice: -5, Quantity: 3}, {UnitPrice: 19.99, Quantity: 3}},
			want:  pricing.Summary{Subtotal: 59.97, ShippingFee: 10, Tax: 9, GrandTotal: 78.97},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.Compute(tc.items)
			require.Equal(t, tc.want, got)
			require.Equal(t, got, calc.Compute(tc.items))
		})
	}
}

func TestComputeProperties(t *testing.T) {
	calc := pricing.Default()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := rng.Intn(6)
		items := make([]pricing.Item, n)
		sum := decimal.Zero
		for j := range items {
			cents := rng.Int63n(20000)
			qty := rng.Intn(5) + 1
			price := decimal.New(cents, -2)
			items[j] = pricing.Item{UnitPrice: price.InexactFloat64(), Quantity: qty}
			sum = sum.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		}
		got := calc.Compute(items)

		require.Equal(t, sum.Round(2).InexactFloat64(), got.Subtotal)
		if got.Subtotal > 100 {
			require.Zero(t, got.ShippingFee)
		} else {
			require.Equal(t, float64(10), got.ShippingFee)
		}
		require.Equal(t, sum.Mul(decimal.RequireFromString("0.15")).Round(2).InexactFloat64(), got.Tax)
		total := decimal.NewFromFloat(got.Subtotal).Add(decimal.NewFromFloat(got.ShippingFee)).Add(decimal.NewFromFloat(got.Tax))
		require.Equal(t, total.InexactFloat64(), got.GrandTotal)
		require.Equal(t, got, calc.Compute(items))
	}
}

func TestNewParsesConfiguration(t *testing.T) {
	calc, err := pricing.New("50", "5", "0.1")
	require.NoError(t, err)
	got := calc.Compute([]pricing.Item{{UnitPrice: 40, Quantity: 1}})
	require.Equal(t, pricing.Summary{Subtotal: 40, ShippingFee: 5, Tax: 4, GrandTotal: 49}, got)

	_, err = pricing.New("abc", "5", "0.1")
	require.Error(t, err)
	_, err = pricing.New("50", "-1", "0.1")
	require.Error(t, err)
}

func TestSummaryEqualComparesCents(t *testing.T) {
	a := pricing.Summary{Subtotal: 10.004, ShippingFee: 10, Tax: 1.5, GrandTotal: 21.5}
	b := pricing.Summary{Subtotal: 10, ShippingFee: 10, Tax: 1.5, GrandTotal: 21.5}
	require.True(t, a.Equal(b))
	b.Tax = 1.51
	require.False(t, a.Equal(b))
}

func TestFormatAndParseAmount(t *testing.T) {
	require.Equal(t, "138.00", pricing.FormatAmount(138))
	require.Equal(t, "10.35", pricing.FormatAmount(10.35))
	v, err := pricing.ParseAmount("33.00")
	require.NoError(t, err)
	require.Equal(t, float64(33), v)
}
