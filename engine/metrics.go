package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowmesh/workflow/engine/emit"
)

// Metrics holds the Prometheus instruments a host sets directly around its
// own dispatch and sweep loops: inflight_actions and step_latency_ms are
// timed at the call boundary (HandleAction/StartWorkflow, the router
// sweeper), since Engine and Router never record these instruments
// themselves — only a host binary that chooses to expose /metrics does. queue_depth mirrors router.Router.PendingCount, polled by
// the host rather than pushed by the router.
type Metrics struct {
	InflightActions prometheus.Gauge
	QueueDepth      prometheus.Gauge
	StepLatency     *prometheus.HistogramVec // labels: workflow, outcome
}

// NewMetrics registers the gauge and histogram metrics with registry (nil
// defaults to prometheus.DefaultRegisterer).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		InflightActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "inflight_actions",
			Help:      "Number of HandleAction/StartWorkflow calls currently executing",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow",
			Name:      "queue_depth",
			Help:      "Number of entries currently waiting in the router's retry queue",
		}),
		StepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "workflow",
			Name:      "step_latency_ms",
			Help:      "Wall-clock duration of one HandleAction/StartWorkflow call, in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"workflow", "outcome"}),
	}
}

// ObserveStepLatency records d against workflowID/outcome. Callers wrap
// their Engine.HandleAction / Engine.StartWorkflow call with
// time.Since(start) and the returned Outcome.
func (m *Metrics) ObserveStepLatency(workflowID string, outcome Outcome, d time.Duration) {
	m.StepLatency.WithLabelValues(workflowID, string(outcome)).Observe(float64(d.Milliseconds()))
}

// Track increments InflightActions for the duration of fn, decrementing
// again and observing fn's elapsed time against workflowID/outcome once it
// returns.
func (m *Metrics) Track(workflowID string, fn func() (Outcome, error)) (Outcome, error) {
	m.InflightActions.Inc()
	start := time.Now()
	defer m.InflightActions.Dec()
	outcome, err := fn()
	m.ObserveStepLatency(workflowID, outcome, time.Since(start))
	return outcome, err
}

// PrometheusEmitter wraps an inner Emitter (e.g. a LogEmitter or
// OtelEmitter) and additionally records lock_contention_total and
// tool_errors_total/retries_total from the events the engine already emits
// through Options.Emitter, forwarding every event to inner afterward.
// Grounded on the teacher's graph.PrometheusMetrics (graph/metrics.go),
// reshaped from a standalone recorder into an Emitter decorator to fit this
// engine's pluggable-Emitter observability design.
type PrometheusEmitter struct {
	inner emit.Emitter

	lockContention *prometheus.CounterVec
	toolErrors     *prometheus.CounterVec
	retries        *prometheus.CounterVec
}

// NewPrometheusEmitter registers its counters with registry and forwards
// every event to inner after recording metrics. inner may be nil, defaulting
// to emit.NewNullEmitter().
func NewPrometheusEmitter(registry prometheus.Registerer, inner emit.Emitter) *PrometheusEmitter {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if inner == nil {
		inner = emit.NewNullEmitter()
	}
	factory := promauto.With(registry)
	return &PrometheusEmitter{
		inner: inner,
		lockContention: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "lock_contention_total",
			Help:      "Count of HandleAction/StartWorkflow calls rejected by the per-user concurrency guard",
		}, []string{"op"}),
		toolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "tool_errors_total",
			Help:      "Count of toolCall invocations that failed or returned success=false",
		}, []string{"tool"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workflow",
			Name:      "retries_total",
			Help:      "Count of tool-call retry attempts made by a retry.Go-wrapped ToolExecutor",
		}, []string{"tool"}),
	}
}

// Emit records a metric for e.Msg when recognized, then forwards e to inner
// regardless.
func (m *PrometheusEmitter) Emit(e emit.Event) {
	switch e.Msg {
	case "lock_contention":
		op, _ := e.Meta["op"].(string)
		m.lockContention.WithLabelValues(op).Inc()
	case "tool_error":
		tool, _ := e.Meta["tool"].(string)
		m.toolErrors.WithLabelValues(tool).Inc()
	case "tool_retry":
		tool, _ := e.Meta["tool"].(string)
		m.retries.WithLabelValues(tool).Inc()
	}
	m.inner.Emit(e)
}

func (m *PrometheusEmitter) EmitBatch(ctx context.Context, events []emit.Event) error {
	for _, e := range events {
		m.Emit(e)
	}
	return m.inner.Flush(ctx)
}

func (m *PrometheusEmitter) Flush(ctx context.Context) error {
	return m.inner.Flush(ctx)
}
