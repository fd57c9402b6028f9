package quality

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

func cacaoThresholds(t *testing.T) []Threshold {
	return []Threshold{
		{Metric: MetricVioletas, LimitPercent: dec(t, "10")},
		{Metric: MetricHumedad, LimitPercent: dec(t, "15")},
		{Metric: MetricMoho, LimitPercent: dec(t, "5")},
	}
}

func TestComputeDiscountProgressive(t *testing.T) {
	readings := []Reading{
		{Metric: MetricVioletas, Value: dec(t, "12"), Valid: true},
		{Metric: MetricHumedad, Value: dec(t, "18"), Valid: true},
		{Metric: MetricMoho, Value: dec(t, "7"), Valid: true},
	}
	result := ComputeDiscount(dec(t, "500"), cacaoThresholds(t), readings)

	require.Len(t, result.Breakdown, 3)

	// Violetas: 2% of 500 = 10kg, weight drops to 490.
	require.True(t, result.Breakdown[0].DeductedWeight.Equal(dec(t, "10")), "violetas deduction: %s", result.Breakdown[0].DeductedWeight)
	// Humedad: 3% of 490 = 14.7kg, weight drops to 475.3.
	require.True(t, result.Breakdown[1].DeductedWeight.Equal(dec(t, "14.7")), "humedad deduction: %s", result.Breakdown[1].DeductedWeight)
	// Moho: 2% of 475.3 = 9.506kg.
	require.True(t, result.Breakdown[2].DeductedWeight.Equal(dec(t, "9.506")), "moho deduction: %s", result.Breakdown[2].DeductedWeight)

	require.True(t, result.FinalWeight.Equal(dec(t, "465.794")), "final weight: %s", result.FinalWeight)
	require.True(t, result.TotalDiscountWeight.Equal(dec(t, "34.206")), "total discount: %s", result.TotalDiscountWeight)
}

func TestComputeDiscountSecondDeductionUsesReducedWeight(t *testing.T) {
	readings := []Reading{
		{Metric: MetricVioletas, Value: dec(t, "20"), Valid: true},
		{Metric: MetricHumedad, Value: dec(t, "25"), Valid: true},
	}
	result := ComputeDiscount(dec(t, "100"), cacaoThresholds(t), readings)

	// Additive-on-original would deduct 10 + 10 = 20; compounding deducts 10 + 9.
	require.True(t, result.Breakdown[1].DeductedWeight.Equal(dec(t, "9")))
	require.True(t, result.FinalWeight.Equal(dec(t, "81")))
}

func TestComputeDiscountZeroWeight(t *testing.T) {
	readings := []Reading{{Metric: MetricMoho, Value: dec(t, "50"), Valid: true}}
	result := ComputeDiscount(decimal.Zero, cacaoThresholds(t), readings)

	require.True(t, result.FinalWeight.IsZero())
	require.True(t, result.TotalDiscountWeight.IsZero())
	require.True(t, result.TotalDiscountPercent.IsZero())
	require.Empty(t, result.Breakdown)
}

func TestComputeDiscountReadingAtThreshold(t *testing.T) {
	readings := []Reading{{Metric: MetricHumedad, Value: dec(t, "15"), Valid: true}}
	result := ComputeDiscount(dec(t, "200"), cacaoThresholds(t), readings)

	require.Empty(t, result.Breakdown)
	require.True(t, result.FinalWeight.Equal(dec(t, "200")))
}

func TestComputeDiscountUnconfiguredMetricIgnored(t *testing.T) {
	thresholds := []Threshold{
		{Metric: MetricVioletas, LimitPercent: dec(t, "10")},
		{Metric: MetricHumedad, LimitPercent: dec(t, "15")},
	}
	readings := []Reading{{Metric: MetricMoho, Value: dec(t, "50"), Valid: true}}
	result := ComputeDiscount(dec(t, "300"), thresholds, readings)

	require.Empty(t, result.Breakdown)
	require.True(t, result.FinalWeight.Equal(dec(t, "300")))
}

func TestComputeDiscountInvalidReadingsSkipped(t *testing.T) {
	readings := []Reading{
		{Metric: MetricVioletas, Valid: false},
		{Metric: MetricHumedad, Value: dec(t, "-3"), Valid: true},
		{Metric: MetricMoho, Value: decimal.Zero, Valid: true},
	}
	result := ComputeDiscount(dec(t, "100"), cacaoThresholds(t), readings)

	require.Empty(t, result.Breakdown)
	require.True(t, result.FinalWeight.Equal(dec(t, "100")))
}

func TestComputeDiscountFinalWeightBounds(t *testing.T) {
	weights := []string{"0.001", "1", "100", "500", "99999.999"}
	readings := []Reading{
		{Metric: MetricVioletas, Value: dec(t, "100"), Valid: true},
		{Metric: MetricHumedad, Value: dec(t, "100"), Valid: true},
		{Metric: MetricMoho, Value: dec(t, "100"), Valid: true},
	}
	for _, w := range weights {
		original := dec(t, w)
		result := ComputeDiscount(original, cacaoThresholds(t), readings)
		require.False(t, result.FinalWeight.IsNegative(), "weight %s", w)
		require.True(t, result.FinalWeight.LessThanOrEqual(original), "weight %s", w)
		require.True(t, result.TotalDiscountWeight.Add(result.FinalWeight).Equal(original), "weight %s", w)
	}
}

func TestParseMetric(t *testing.T) {
	m, ok := ParseMetric(" Humedad ")
	require.True(t, ok)
	require.Equal(t, MetricHumedad, m)

	_, ok = ParseMetric("acidez")
	require.False(t, ok)
}
