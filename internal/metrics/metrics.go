// Package metrics holds the Prometheus collectors of the bot.
//
//   - levelbot_decisions_total{action}  committed decisions (open|average|close)
//   - levelbot_orders_total{side}       orders executed by the order placer
//   - levelbot_closes_total{rule}       closes by closing rule
//   - levelbot_failures_total{kind}     order|persist|config failures
//   - levelbot_active_position          1 while a position is open
//   - levelbot_engine_disabled          1 while the engine is disabled
//   - levelbot_ticks_dropped_total      ticks replaced by a fresher one before processing
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	decisions    *prometheus.CounterVec
	orders       *prometheus.CounterVec
	closes       *prometheus.CounterVec
	failures     *prometheus.CounterVec
	active       prometheus.Gauge
	disabled     prometheus.Gauge
	ticksDropped prometheus.Counter
}

// New creates the collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "levelbot_decisions_total", Help: "Committed strategy decisions"},
			[]string{"action"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "levelbot_orders_total", Help: "Orders executed"},
			[]string{"side"},
		),
		closes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "levelbot_closes_total", Help: "Position closes split by closing rule"},
			[]string{"rule"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "levelbot_failures_total", Help: "Failed decisions split by failure kind"},
			[]string{"kind"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "levelbot_active_position", Help: "1 while a position is open"},
		),
		disabled: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "levelbot_engine_disabled", Help: "1 while the engine is disabled"},
		),
		ticksDropped: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "levelbot_ticks_dropped_total", Help: "Ticks superseded before the engine processed them"},
		),
	}
	m.registry.MustRegister(m.decisions, m.orders, m.closes, m.failures, m.active, m.disabled, m.ticksDropped)
	return m
}

// Registry exposes the registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncDecision(action string) {
	if m != nil {
		m.decisions.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncOrder(side string) {
	if m != nil {
		m.orders.WithLabelValues(side).Inc()
	}
}

func (m *Metrics) IncClose(rule string) {
	if m != nil {
		m.closes.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) IncFailure(kind string) {
	if m != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) IncTicksDropped() {
	if m != nil {
		m.ticksDropped.Inc()
	}
}

func (m *Metrics) SetActivePosition(open bool) {
	if m != nil {
		m.active.Set(boolToFloat(open))
	}
}

func (m *Metrics) SetDisabled(disabled bool) {
	if m != nil {
		m.disabled.Set(boolToFloat(disabled))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
