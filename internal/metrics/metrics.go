// Package metrics holds the Prometheus collectors exported by the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RaceOutcomes     *prometheus.CounterVec
	EndpointFailures *prometheus.CounterVec
	RaceLatency      *prometheus.HistogramVec
	Verdicts         *prometheus.CounterVec
	PriceLayerHits   *prometheus.CounterVec
	BlocklistMerges  *prometheus.CounterVec
	BlocklistSize    prometheus.Gauge
	NavigationChecks *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RaceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_rpc_race_total",
			Help: "RPC races by chain and outcome (ok, reverted, unreachable)",
		}, []string{"chain", "outcome"}),
		EndpointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_rpc_endpoint_failures_total",
			Help: "Per-endpoint transport or malformed-response failures",
		}, []string{"endpoint"}),
		RaceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "txrisk_rpc_race_duration_seconds",
			Help:    "Time until the first valid response of a race",
			Buckets: prometheus.DefBuckets,
		}, []string{"chain"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_verdicts_total",
			Help: "Risk verdicts produced by level",
		}, []string{"level"}),
		PriceLayerHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_price_resolutions_total",
			Help: "Price resolutions by the layer that answered",
		}, []string{"layer"}),
		BlocklistMerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_blocklist_refresh_total",
			Help: "Blocklist refresh attempts by result",
		}, []string{"result"}),
		BlocklistSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "txrisk_blocklist_size",
			Help: "Number of addresses currently blocked",
		}),
		NavigationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "txrisk_navigation_checks_total",
			Help: "Navigation verdicts by action",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RaceOutcomes,
			m.EndpointFailures,
			m.RaceLatency,
			m.Verdicts,
			m.PriceLayerHits,
			m.BlocklistMerges,
			m.BlocklistSize,
			m.NavigationChecks,
		)
	}
	return m
}

func (m *Metrics) ObserveRace(chain, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RaceOutcomes.WithLabelValues(chain, outcome).Inc()
	if outcome == "ok" {
		m.RaceLatency.WithLabelValues(chain).Observe(seconds)
	}
}

func (m *Metrics) EndpointFailed(endpoint string) {
	if m == nil {
		return
	}
	m.EndpointFailures.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) Verdict(level string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(level).Inc()
}

func (m *Metrics) PriceLayer(layer string) {
	if m == nil {
		return
	}
	m.PriceLayerHits.WithLabelValues(layer).Inc()
}

func (m *Metrics) BlocklistRefresh(result string, size int) {
	if m == nil {
		return
	}
	m.BlocklistMerges.WithLabelValues(result).Inc()
	m.BlocklistSize.Set(float64(size))
}

func (m *Metrics) Navigation(action string) {
	if m == nil {
		return
	}
	m.NavigationChecks.WithLabelValues(action).Inc()
}
