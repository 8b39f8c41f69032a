package engine

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes live-engine counters over Prometheus. All methods are
// safe on a nil receiver so callers can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	AdvancesTotal     prometheus.Counter
	AdvanceErrors     prometheus.Counter
	EventsProcessed   prometheus.Counter
	DataErrors        prometheus.Counter
	PositionsEntered  *prometheus.CounterVec
	PositionsResolved *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		AdvancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papersim_advances_total",
			Help: "Live session advance calls completed",
		}),
		AdvanceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papersim_advance_errors_total",
			Help: "Live session advance calls that failed",
		}),
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papersim_events_processed_total",
			Help: "Trade events folded into live sessions",
		}),
		DataErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papersim_data_errors_total",
			Help: "Malformed trade events skipped",
		}),
		PositionsEntered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papersim_positions_entered_total",
			Help: "Positions opened per strategy",
		}, []string{"strategy"}),
		PositionsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papersim_positions_resolved_total",
			Help: "Positions resolved per strategy",
		}, []string{"strategy"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papersim_sessions_active",
			Help: "Live sessions currently active",
		}),
	}

	m.registry.MustRegister(
		m.AdvancesTotal,
		m.AdvanceErrors,
		m.EventsProcessed,
		m.DataErrors,
		m.PositionsEntered,
		m.PositionsResolved,
		m.SessionsActive,
	)
	return m
}

// Handler serves the registry over HTTP.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) advance(result *AdvanceResult, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AdvanceErrors.Inc()
		return
	}
	m.AdvancesTotal.Inc()
	if result != nil {
		m.EventsProcessed.Add(float64(result.EventsProcessed))
		m.DataErrors.Add(float64(result.TradesSkipped))
	}
}

func (m *Metrics) sessionDelta(d float64) {
	if m == nil {
		return
	}
	m.SessionsActive.Add(d)
}

func (m *Metrics) position(strategyID, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	switch kind {
	case "entry":
		m.PositionsEntered.WithLabelValues(strategyID).Add(float64(n))
	case "resolution":
		m.PositionsResolved.WithLabelValues(strategyID).Add(float64(n))
	}
}
