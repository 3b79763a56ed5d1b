package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/safepoint/config"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector("test")

	c.ThrottleDecision("password_reset", "allowed")
	c.ThrottleDecision("password_reset", "blocked")
	c.ThrottleDecision("password_reset", "blocked")
	c.TokenOutcome("reset", "expired")
	c.ReportIdentifier("issued")
	c.TokensPurged("reset", 3)
	c.TokensPurged("reset", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.ThrottleDecisions().WithLabelValues("password_reset", "allowed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.ThrottleDecisions().WithLabelValues("password_reset", "blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TokenOutcomes().WithLabelValues("reset", "expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ReportIdentifiers().WithLabelValues("issued")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.PurgedTokens().WithLabelValues("reset")))
}

func TestCollector_NilSafety(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ThrottleDecision("p", "allowed")
		c.TokenOutcome("reset", "consumed")
		c.ReportIdentifier("issued")
		c.TokensPurged("reset", 1)
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("safepoint")
	c.ReportIdentifier("daily_limit_exceeded")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `safepoint_report_identifiers_total{outcome="daily_limit_exceeded"} 1`))
}

func TestProvideCollector(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, ProvideCollector(cfg))

	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "x"
	assert.NotNil(t, ProvideCollector(cfg))
}
