// Package metrics holds the Prometheus instruments of the terminal.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
	OutcomeReverted = "reverted"
	OutcomeRejected = "rejected"
)

// Metrics holds all Prometheus metrics for the terminal.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	QuoteFetches        *prometheus.CounterVec // labels: outcome
	Swaps               *prometheus.CounterVec // labels: outcome
	Approvals           prometheus.Counter
	CandleRefreshes     *prometheus.CounterVec // labels: outcome
	IndicatorComputeDur prometheus.Histogram
	TradePersistFails   prometheus.Counter
}

// NewMetrics creates metrics registered on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		QuoteFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexterm_quote_fetches_total",
			Help: "Indicative quote fetches by outcome",
		}, []string{"outcome"}),
		Swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexterm_swaps_total",
			Help: "Swap executions by outcome",
		}, []string{"outcome"}),
		Approvals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexterm_approvals_total",
			Help: "Token approvals submitted",
		}),
		CandleRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexterm_candle_refreshes_total",
			Help: "Candle refreshes by outcome",
		}, []string{"outcome"}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dexterm_indicator_compute_duration_seconds",
			Help:    "Time to recompute all chart overlays",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		TradePersistFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dexterm_trade_persist_failures_total",
			Help: "Trade records that could not be persisted",
		}),
	}

	m.registry.MustRegister(
		m.QuoteFetches,
		m.Swaps,
		m.Approvals,
		m.CandleRefreshes,
		m.IndicatorComputeDur,
		m.TradePersistFails,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) QuoteFetched(outcome string) {
	if m == nil {
		return
	}
	m.QuoteFetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SwapFinished(outcome string) {
	if m == nil {
		return
	}
	m.Swaps.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ApprovalSubmitted() {
	if m == nil {
		return
	}
	m.Approvals.Inc()
}

func (m *Metrics) CandlesRefreshed(outcome string) {
	if m == nil {
		return
	}
	m.CandleRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveIndicatorCompute(d time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorComputeDur.Observe(d.Seconds())
}

func (m *Metrics) TradePersistFailed() {
	if m == nil {
		return
	}
	m.TradePersistFails.Inc()
}
