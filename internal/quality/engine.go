package quality

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Metric identifies a quality parameter measured on a reception sample.
type Metric string

const (
	// MetricVioletas is the foreign/violet matter percentage.
	MetricVioletas Metric = "violetas"
	// MetricHumedad is the moisture percentage.
	MetricHumedad Metric = "humedad"
	// MetricMoho is the mold percentage.
	MetricMoho Metric = "moho"
)

// EvaluationOrder fixes the order metrics are applied in. The order matters
// when more than one metric exceeds its threshold: each deduction is taken
// against the weight already reduced by the previous metrics.
var EvaluationOrder = [...]Metric{MetricVioletas, MetricHumedad, MetricMoho}

// ParseMetric normalises a metric name. The second return reports whether the
// metric is known.
func ParseMetric(raw string) (Metric, bool) {
	switch Metric(strings.ToLower(strings.TrimSpace(raw))) {
	case MetricVioletas:
		return MetricVioletas, true
	case MetricHumedad:
		return MetricHumedad, true
	case MetricMoho:
		return MetricMoho, true
	}
	return "", false
}

// Threshold is the configured limit for one metric. Readings at or below the
// limit carry no discount.
type Threshold struct {
	Metric       Metric          `json:"metric"`
	LimitPercent decimal.Decimal `json:"limit_percent"`
}

// Reading is one observed metric value. Invalid readings (missing, malformed
// or negative at the boundary) are skipped by the engine rather than failing.
type Reading struct {
	Metric Metric
	Value  decimal.Decimal
	Valid  bool
}

// LineItem is one metric's contribution to the total weight deduction.
type LineItem struct {
	Parameter        Metric
	ThresholdPercent decimal.Decimal
	ObservedPercent  decimal.Decimal
	DiscountPercent  decimal.Decimal
	DeductedWeight   decimal.Decimal
}

// DiscountResult aggregates the outcome of a discount computation.
type DiscountResult struct {
	FinalWeight          decimal.Decimal
	TotalDiscountWeight  decimal.Decimal
	TotalDiscountPercent decimal.Decimal
	Breakdown            []LineItem
}

var hundred = decimal.NewFromInt(100)

// ComputeDiscount applies the configured thresholds to the observed readings
// and returns the deducted weight with a per-metric breakdown.
//
// The model is progressive: metrics are evaluated in EvaluationOrder and each
// excess percentage is taken from the current (already reduced) weight, so a
// later metric never deducts weight a previous one already removed. The
// comparison against the threshold is strict: a reading exactly at the limit
// produces no discount.
//
// This function never fails. Unconfigured metrics, absent or zero readings
// and non-positive original weights all degrade to "no discount".
func ComputeDiscount(originalWeight decimal.Decimal, thresholds []Threshold, readings []Reading) DiscountResult {
	if originalWeight.Sign() <= 0 {
		return DiscountResult{
			FinalWeight:          decimal.Zero,
			TotalDiscountWeight:  decimal.Zero,
			TotalDiscountPercent: decimal.Zero,
		}
	}

	limits := make(map[Metric]decimal.Decimal, len(thresholds))
	for _, t := range thresholds {
		limits[t.Metric] = t.LimitPercent
	}
	observed := make(map[Metric]Reading, len(readings))
	for _, r := range readings {
		observed[r.Metric] = r
	}

	current := originalWeight
	var breakdown []LineItem
	for _, metric := range EvaluationOrder {
		limit, configured := limits[metric]
		if !configured {
			continue
		}
		reading, present := observed[metric]
		if !present || !reading.Valid || reading.Value.Sign() <= 0 {
			continue
		}
		if reading.Value.Cmp(limit) <= 0 {
			continue
		}
		excess := reading.Value.Sub(limit)
		deduction := current.Mul(excess).Div(hundred)
		breakdown = append(breakdown, LineItem{
			Parameter:        metric,
			ThresholdPercent: limit,
			ObservedPercent:  reading.Value,
			DiscountPercent:  excess,
			DeductedWeight:   deduction,
		})
		current = current.Sub(deduction)
	}

	totalDiscount := originalWeight.Sub(current)
	return DiscountResult{
		FinalWeight:          current,
		TotalDiscountWeight:  totalDiscount,
		TotalDiscountPercent: totalDiscount.Div(originalWeight).Mul(hundred),
		Breakdown:            breakdown,
	}
}
