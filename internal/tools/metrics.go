package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects runtime counters for tool executions and the agent loop.
type Metrics struct {
	// ToolExecutions counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutions *prometheus.CounterVec

	// LoopIterations counts agent loop iterations.
	LoopIterations prometheus.Counter

	// StreamErrors counts provider stream failures.
	StreamErrors prometheus.Counter
}

// NewMetrics creates and registers the runtime metrics on the given
// registerer (prometheus.DefaultRegisterer for the process registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "loopd_tool_executions_total",
				Help: "Tool invocations by tool name and status.",
			},
			[]string{"tool", "status"},
		),
		LoopIterations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "loopd_loop_iterations_total",
				Help: "Agent loop iterations across all conversations.",
			},
		),
		StreamErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "loopd_stream_errors_total",
				Help: "Provider stream failures.",
			},
		),
	}
}
