// Package metrics holds the Prometheus collectors of the ledger service.
//
// All helper methods are safe on a nil *Metrics so optional components and
// unit tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	Conversions         *prometheus.CounterVec
	TradeActions        *prometheus.CounterVec
	FeesCollected       *prometheus.CounterVec
	RateRefreshes       *prometheus.CounterVec
	IntegrityViolations prometheus.Counter
	OffersExpired       prometheus.Counter
	TierUpdateFailures  prometheus.Counter
	MirrorEvents        *prometheus.CounterVec
	RPCLatency          *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Completed point conversions by source and destination program.",
		}, []string{"from", "to"}),
		TradeActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_actions_total",
			Help:      "Trade offer transitions by action.",
		}, []string{"action"}),
		FeesCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected_points_total",
			Help:      "Points destroyed as fees, by operation kind.",
		}, []string{"kind"}),
		RateRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_refreshes_total",
			Help:      "Exchange rate refresh attempts by outcome.",
		}, []string{"result"}),
		IntegrityViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_integrity_violations_total",
			Help:      "Credits that failed after a debit in the same unit.",
		}),
		OffersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offers_expired_total",
			Help:      "Trade offers moved to the expired state.",
		}),
		TierUpdateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_update_failures_total",
			Help:      "Tier activity updates that failed after a committed operation.",
		}),
		MirrorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_events_total",
			Help:      "Ledger mirror events by sink and outcome.",
		}, []string{"sink", "result"}),
		RPCLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "Latency distribution of API calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Conversions,
			m.TradeActions,
			m.FeesCollected,
			m.RateRefreshes,
			m.IntegrityViolations,
			m.OffersExpired,
			m.TierUpdateFailures,
			m.MirrorEvents,
			m.RPCLatency,
		)
	}
	return m
}

func (m *Metrics) ConversionCompleted(from, to string, fee decimal.Decimal) {
	if m == nil {
		return
	}
	m.Conversions.WithLabelValues(from, to).Inc()
	m.FeeCollected("conversion", fee)
}

func (m *Metrics) TradeAction(action string) {
	if m == nil {
		return
	}
	m.TradeActions.WithLabelValues(action).Inc()
}

func (m *Metrics) FeeCollected(kind string, fee decimal.Decimal) {
	if m == nil || !fee.IsPositive() {
		return
	}
	m.FeesCollected.WithLabelValues(kind).Add(fee.InexactFloat64())
}

func (m *Metrics) RateRefresh(result string) {
	if m == nil {
		return
	}
	m.RateRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IntegrityViolation() {
	if m == nil {
		return
	}
	m.IntegrityViolations.Inc()
}

func (m *Metrics) OfferExpired() {
	if m == nil {
		return
	}
	m.OffersExpired.Inc()
}

func (m *Metrics) TierUpdateFailed() {
	if m == nil {
		return
	}
	m.TierUpdateFailures.Inc()
}

func (m *Metrics) MirrorEvent(sink, result string) {
	if m == nil {
		return
	}
	m.MirrorEvents.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCLatency.WithLabelValues(method, code).Observe(d.Seconds())
}
