package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector exported by the service.
var Registry = prometheus.NewRegistry()

var (
	executionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "executions_total",
		Help:      "Finished executions by terminal status.",
	}, []string{"status"})

	executionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of a whole execution.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	stepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "steps_total",
		Help:      "Executed steps by kind and outcome.",
	}, []string{"kind", "outcome"})

	toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "tool_call_duration_seconds",
		Help:      "Latency of tool capability invocations.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"tool"})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentflow",
		Name:      "http_requests_total",
		Help:      "HTTP requests by handler, method and status code.",
	}, []string{"handler", "method", "code"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentflow",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "method"})
)

func init() {
	Registry.MustRegister(
		executionsTotal,
		executionDuration,
		stepsTotal,
		toolCallDuration,
		httpRequests,
		httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Step outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ObserveExecution records a finished execution.
func ObserveExecution(status string, duration time.Duration) {
	executionsTotal.WithLabelValues(status).Inc()
	executionDuration.Observe(duration.Seconds())
}

// ObserveStep records the outcome of one step.
func ObserveStep(kind, outcome string) {
	stepsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveToolCall records the latency of one capability call.
func ObserveToolCall(tool string, duration time.Duration) {
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
