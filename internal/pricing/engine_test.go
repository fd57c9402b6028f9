package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestComputeAmounts(t *testing.T) {
	a := Compute(dec(t, "500"), dec(t, "465.794"), dec(t, "12.50"))

	require.True(t, a.GrossAmount.Equal(dec(t, "6250")), "gross: %s", a.GrossAmount)
	require.True(t, a.NetAmount.Equal(dec(t, "5822.425")), "net: %s", a.NetAmount)
	require.True(t, a.DiscountAmount.Equal(dec(t, "427.575")), "discount: %s", a.DiscountAmount)
}

func TestComputeDiscountIsGrossMinusNet(t *testing.T) {
	cases := []struct{ original, final, price string }{
		{"500", "465.794", "12.50"},
		{"100", "100", "7"},
		{"0.001", "0.0005", "9999.99"},
		{"1000", "0", "3.33"},
	}
	for _, c := range cases {
		a := Compute(dec(t, c.original), dec(t, c.final), dec(t, c.price))
		require.True(t, a.DiscountAmount.Add(a.NetAmount).Equal(a.GrossAmount),
			"original=%s final=%s price=%s", c.original, c.final, c.price)
	}
}

func TestComputeNoDiscountMeansEqualAmounts(t *testing.T) {
	a := Compute(dec(t, "250"), dec(t, "250"), dec(t, "4.20"))
	require.True(t, a.GrossAmount.Equal(a.NetAmount))
	require.True(t, a.DiscountAmount.IsZero())
}
