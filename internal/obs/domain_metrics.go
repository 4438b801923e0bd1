package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersCreatedTotal counts order submissions by result (created, replayed, rejected).
	OrdersCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Count of order submissions by result.",
	}, []string{"result"})
	// OrderTransitionsTotal counts paid/delivered transitions by outcome.
	OrderTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Count of order status transitions by outcome.",
	}, []string{"transition", "result"})
	// PaymentCaptureTotal counts payment adapter outcomes per provider.
	PaymentCaptureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_capture_total",
		Help: "Count of payment capture outcomes.",
	}, []string{"provider", "outcome"})
	// CatalogCacheTotal counts catalog cache lookups by result.
	CatalogCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_requests_total",
		Help: "Catalog cache lookups by result.",
	}, []string{"result"})
)

// MustRegisterDomainMetrics registers domain-specific Prometheus collectors.
// The collectors exist before registration so that packages can record
// into them unconditionally, including in tests.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if namespace != "" {
			reg = prometheus.WrapRegistererWithPrefix(namespace+"_", reg)
		}
		mustRegisterCollector(reg, OrdersCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, OrderTransitionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderTransitionsTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentCaptureTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentCaptureTotal = v
			}
		})
		mustRegisterCollector(reg, CatalogCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CatalogCacheTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
