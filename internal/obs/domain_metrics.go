package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// RecomputeTotal counts discount/pricing recompute outcomes by trigger.
	RecomputeTotal *prometheus.CounterVec
	// PricingOutcomeTotal counts pricing calculation outcomes (priced vs price unavailable).
	PricingOutcomeTotal *prometheus.CounterVec
	// BatchDistributionTotal counts dried-weight distributions across batches.
	BatchDistributionTotal prometheus.Counter
	// DiscountPercentApplied records the total discount percentage per recompute.
	DiscountPercentApplied prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		RecomputeTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reception_recompute_total",
			Help:      "Count of reception discount recompute outcomes.",
		}, []string{"trigger", "result"}))
		PricingOutcomeTotal = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_outcome_total",
			Help:      "Count of pricing calculation outcomes.",
		}, []string{"outcome"}))
		BatchDistributionTotal = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_distribution_total",
			Help:      "Number of dried-weight distributions performed.",
		}))
		DiscountPercentApplied = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discount_percent_applied",
			Help:      "Total discount percentage applied per recompute.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 20, 30, 50},
		}))
	})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) prometheus.Counter {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register counter: %w", err))
	}
	return c
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram) prometheus.Histogram {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing
			}
		}
		panic(fmt.Errorf("register histogram: %w", err))
	}
	return h
}
