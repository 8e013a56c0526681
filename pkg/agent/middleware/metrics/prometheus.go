package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	failoversTotal  *prometheus.CounterVec
	outcomesTotal   *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder whose collectors are registered on
// reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_requests_total",
				Help: "Total number of backend calls by model, status, and error code",
			},
			[]string{"model", "status", "error_code"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_backend_tokens_total",
				Help: "Total number of tokens used in successful backend calls",
			},
			[]string{"model", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_backend_request_duration_seconds",
				Help:    "Duration of backend calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_invoker_retries_total",
				Help: "Total number of primary retries by model and error code",
			},
			[]string{"model", "error_code"},
		),
		failoversTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_invoker_failovers_total",
				Help: "Total number of switches to the secondary backend by triggering error code",
			},
			[]string{"reason"},
		),
		outcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_invoker_outcomes_total",
				Help: "Total number of finished invocations by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveRequest records metrics for a completed backend call.
func (p *PrometheusRecorder) ObserveRequest(
	model string,
	promptTokens, completionTokens int,
	success bool,
	errorCode string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, status, errorCode).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// IncRetry increments the retry counter.
func (p *PrometheusRecorder) IncRetry(model, errorCode string) {
	p.retriesTotal.WithLabelValues(model, errorCode).Inc()
}

// IncFailover increments the failover counter.
func (p *PrometheusRecorder) IncFailover(reason string) {
	p.failoversTotal.WithLabelValues(reason).Inc()
}

// IncOutcome increments the outcome counter.
func (p *PrometheusRecorder) IncOutcome(outcome string) {
	p.outcomesTotal.WithLabelValues(outcome).Inc()
}
