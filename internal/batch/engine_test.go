package batch

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func contribs(t *testing.T, weights ...string) []Contribution {
	t.Helper()
	out := make([]Contribution, 0, len(weights))
	for _, w := range weights {
		out = append(out, Contribution{ReceptionID: uuid.New(), WetWeight: dec(t, w)})
	}
	return out
}

func TestDistributeDriedWeightProportional(t *testing.T) {
	shares, err := DistributeDriedWeight(contribs(t, "100", "200", "300"), dec(t, "480"))
	require.NoError(t, err)
	require.Len(t, shares, 3)

	require.True(t, shares[0].DriedShare.Equal(dec(t, "80")), "share 0: %s", shares[0].DriedShare)
	require.True(t, shares[1].DriedShare.Equal(dec(t, "160")), "share 1: %s", shares[1].DriedShare)
	require.True(t, shares[2].DriedShare.Equal(dec(t, "240")), "share 2: %s", shares[2].DriedShare)
}

func TestDistributeDriedWeightSharesSumExactly(t *testing.T) {
	// Thirds do not divide evenly at three decimals; the last share must
	// absorb the remainder.
	shares, err := DistributeDriedWeight(contribs(t, "1", "1", "1"), dec(t, "100"))
	require.NoError(t, err)

	require.True(t, shares[0].DriedShare.Equal(dec(t, "33.333")))
	require.True(t, shares[1].DriedShare.Equal(dec(t, "33.333")))
	require.True(t, shares[2].DriedShare.Equal(dec(t, "33.334")), "last share: %s", shares[2].DriedShare)

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.DriedShare)
	}
	require.True(t, sum.Equal(dec(t, "100")))
}

func TestDistributeDriedWeightPercentages(t *testing.T) {
	shares, err := DistributeDriedWeight(contribs(t, "150", "50"), dec(t, "160"))
	require.NoError(t, err)

	require.True(t, shares[0].PercentOfTotal.Equal(dec(t, "75")))
	require.True(t, shares[1].PercentOfTotal.Equal(dec(t, "25")))
}

func TestDistributeDriedWeightNoContributions(t *testing.T) {
	_, err := DistributeDriedWeight(nil, dec(t, "100"))
	require.ErrorIs(t, err, ErrNoWetWeight)
}

func TestDistributeDriedWeightZeroWetTotal(t *testing.T) {
	shares, err := DistributeDriedWeight(contribs(t, "0", "0"), dec(t, "100"))
	require.NoError(t, err)
	require.Len(t, shares, 2)
	for _, s := range shares {
		require.True(t, s.PercentOfTotal.IsZero(), "percent: %s", s.PercentOfTotal)
		require.True(t, s.DriedShare.IsZero(), "dried share: %s", s.DriedShare)
	}
}

func TestSackBreakdown(t *testing.T) {
	sackWeight := dec(t, "64")

	sacks, remainder := SackBreakdown(dec(t, "480"), sackWeight)
	require.EqualValues(t, 7, sacks)
	require.True(t, remainder.Equal(dec(t, "32")), "remainder: %s", remainder)

	sacks, remainder = SackBreakdown(dec(t, "128"), sackWeight)
	require.EqualValues(t, 2, sacks)
	require.True(t, remainder.IsZero())

	sacks, remainder = SackBreakdown(dec(t, "10"), sackWeight)
	require.EqualValues(t, 0, sacks)
	require.True(t, remainder.Equal(dec(t, "10")))
}
