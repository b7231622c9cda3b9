package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes engine counters and portfolio gauges. A nil *Metrics is
// a valid no-op so tests and embedded uses can skip registration.
type Metrics struct {
	commands     *prometheus.CounterVec
	openLoans    prometheus.Gauge
	portfolioLTV prometheus.Gauge
	atRisk       prometheus.Gauge
}

// NewMetrics registers engine metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lendsim",
			Name:      "commands_total",
			Help:      "Engine commands by name and outcome.",
		}, []string{"command", "outcome"}),
		openLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lendsim",
			Name:      "open_loans",
			Help:      "Number of open (active or matured) loans.",
		}),
		portfolioLTV: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lendsim",
			Name:      "portfolio_ltv_percent",
			Help:      "Weighted portfolio loan-to-value percentage.",
		}),
		atRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lendsim",
			Name:      "loans_at_risk",
			Help:      "Open loans at or above the warning LTV threshold.",
		}),
	}

	reg.MustRegister(m.commands, m.openLoans, m.portfolioLTV, m.atRisk)
	return m
}

func (m *Metrics) observe(command string, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) setPortfolio(p PortfolioMetrics) {
	if m == nil {
		return
	}

	m.openLoans.Set(float64(p.OpenLoans))
	ltv, _ := p.PortfolioLTV.Float64()
	m.portfolioLTV.Set(ltv)
	m.atRisk.Set(float64(p.AtRisk))
}
