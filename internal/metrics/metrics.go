package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics instruments the orchestration pipeline.
type GatewayMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	FallbacksTotal  prometheus.Counter
	UpstreamLatency *prometheus.HistogramVec
	TokensTotal     *prometheus.CounterVec
	BreakerOpen     *prometheus.GaugeVec
}

// New registers the gateway metrics on a registry.
func New(reg prometheus.Registerer) *GatewayMetrics {
	factory := promauto.With(reg)

	return &GatewayMetrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Chat completion requests by model and outcome",
		}, []string{"model", "outcome"}),
		FallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_fallbacks_total",
			Help: "Requests answered by a fallback model",
		}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_upstream_latency_seconds",
			Help:    "Wall time of successful orchestrations",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"model"}),
		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_tokens_total",
			Help: "Tokens consumed by model and direction",
		}, []string{"model", "direction"}),
		BreakerOpen: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_circuit_open",
			Help: "1 when a provider circuit is open",
		}, []string{"provider"}),
	}
}

// ObserveSuccess records a completed orchestration.
func (m *GatewayMetrics) ObserveSuccess(model string, wasFallback bool, seconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(model, "success").Inc()
	if wasFallback {
		m.FallbacksTotal.Inc()
	}
	m.UpstreamLatency.WithLabelValues(model).Observe(seconds)
	m.TokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
}

// ObserveFailure records a surfaced orchestration failure.
func (m *GatewayMetrics) ObserveFailure(model, kind string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(model, kind).Inc()
}

// SetBreakerOpen reflects a provider's circuit state.
func (m *GatewayMetrics) SetBreakerOpen(provider string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1.0
	}
	m.BreakerOpen.WithLabelValues(provider).Set(v)
}
