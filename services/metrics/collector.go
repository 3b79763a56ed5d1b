package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector counts outcomes of the throttling, token and identifier services.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry          *prometheus.Registry
	throttleDecisions *prometheus.CounterVec
	tokenOutcomes     *prometheus.CounterVec
	reportIdentifiers *prometheus.CounterVec
	tokensPurged      *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		throttleDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_decisions_total",
			Help:      "Throttle decisions by policy and outcome.",
		}, []string{"policy", "decision"}),
		tokenOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_outcomes_total",
			Help:      "Security token operations by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		reportIdentifiers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_identifiers_total",
			Help:      "Public report identifier requests by outcome.",
		}, []string{"outcome"}),
		tokensPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_purged_total",
			Help:      "Expired security tokens removed by the sweeper.",
		}, []string{"purpose"}),
	}

	c.registry.MustRegister(c.throttleDecisions, c.tokenOutcomes, c.reportIdentifiers, c.tokensPurged)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ThrottleDecision(policy, decision string) {
	if c != nil {
		c.throttleDecisions.WithLabelValues(policy, decision).Inc()
	}
}

func (c *Collector) TokenOutcome(purpose, outcome string) {
	if c != nil {
		c.tokenOutcomes.WithLabelValues(purpose, outcome).Inc()
	}
}

func (c *Collector) ReportIdentifier(outcome string) {
	if c != nil {
		c.reportIdentifiers.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) TokensPurged(purpose string, n int64) {
	if c != nil && n > 0 {
		c.tokensPurged.WithLabelValues(purpose).Add(float64(n))
	}
}

// ThrottleDecisions exposes the underlying vector for assertions.
func (c *Collector) ThrottleDecisions() *prometheus.CounterVec { return c.throttleDecisions }

func (c *Collector) TokenOutcomes() *prometheus.CounterVec { return c.tokenOutcomes }

func (c *Collector) ReportIdentifiers() *prometheus.CounterVec { return c.reportIdentifiers }

func (c *Collector) PurgedTokens() *prometheus.CounterVec { return c.tokensPurged }
