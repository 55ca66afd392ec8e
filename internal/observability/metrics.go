package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Run outcome labels
const (
	RunStatusCompleted   = "completed"
	RunStatusError       = "error"
	RunStatusIdleTimeout = "idle_timeout"
	RunStatusCancelled   = "cancelled"
)

// MetricsCollector manages all swarm metrics. A zero collector records nothing.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider
	registry *promclient.Registry

	// Workflow metrics
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	runsActive  metric.Int64UpDownCounter
	messages    metric.Int64Counter

	// Tool metrics
	toolExecutions metric.Int64Counter

	// LLM metrics
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmCost         metric.Float64Counter

	// Maintenance metrics
	checkpointResets metric.Int64Counter
	sessionSaves     metric.Int64Counter
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// NewMetricsCollector creates a new metrics collector backed by its own
// Prometheus registry
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("redswarm")

	collector := &MetricsCollector{provider: provider, registry: registry}
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return c
	}

	collector.runs = counter("redswarm.workflow.runs", "Workflow runs by outcome", "{run}")
	collector.messages = counter("redswarm.messages", "Displayed messages by type", "{message}")
	collector.toolExecutions = counter("redswarm.tool.executions", "Tool results by status", "{execution}")
	collector.llmTokensInput = counter("redswarm.llm.tokens.input", "Input tokens sent to the model", "{token}")
	collector.llmTokensOutput = counter("redswarm.llm.tokens.output", "Output tokens returned by the model", "{token}")
	collector.checkpointResets = counter("redswarm.checkpoint.resets", "Thread checkpoints cleared for maintenance", "{reset}")
	collector.sessionSaves = counter("redswarm.sessionlog.saves", "Session log saves by outcome", "{save}")

	if collector.runDuration, err = meter.Float64Histogram(
		"redswarm.workflow.duration",
		metric.WithDescription("Workflow run duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		errs = append(errs, err)
	}
	if collector.runsActive, err = meter.Int64UpDownCounter(
		"redswarm.workflow.active",
		metric.WithDescription("Workflow runs in flight"),
		metric.WithUnit("{run}"),
	); err != nil {
		errs = append(errs, err)
	}
	if collector.llmCost, err = meter.Float64Counter(
		"redswarm.cost.total",
		metric.WithDescription("Total cost of model calls"),
		metric.WithUnit("USD"),
	); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to create instruments: %v", errs)
	}
	return collector, nil
}

// Handler serves the Prometheus exposition of this collector
func (m *MetricsCollector) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordRun records a finished workflow run
func (m *MetricsCollector) RecordRun(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// IncrementActiveRuns marks a run as started
func (m *MetricsCollector) IncrementActiveRuns(ctx context.Context) {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Add(ctx, 1)
}

// DecrementActiveRuns marks a run as finished
func (m *MetricsCollector) DecrementActiveRuns(ctx context.Context) {
	if m == nil || m.runsActive == nil {
		return
	}
	m.runsActive.Add(ctx, -1)
}

// RecordMessage counts a displayed message
func (m *MetricsCollector) RecordMessage(ctx context.Context, messageType string) {
	if m == nil || m.messages == nil {
		return
	}
	m.messages.Add(ctx, 1, metric.WithAttributes(attribute.String("type", messageType)))
}

// RecordToolExecution counts a tool result
func (m *MetricsCollector) RecordToolExecution(ctx context.Context, toolName string, status string) {
	if m == nil || m.toolExecutions == nil {
		return
	}
	m.toolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool_name", toolName),
		attribute.String("status", status),
	))
}

// RecordLLMUsage records tokens and cost reported by a model response
func (m *MetricsCollector) RecordLLMUsage(ctx context.Context, model string, inputTokens, outputTokens int, cost float64) {
	if m == nil || m.llmTokensInput == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmTokensInput.Add(ctx, int64(inputTokens), attrs)
	m.llmTokensOutput.Add(ctx, int64(outputTokens), attrs)
	if cost > 0 {
		m.llmCost.Add(ctx, cost, attrs)
	}
}

// RecordCheckpointReset counts a maintenance checkpoint clear
func (m *MetricsCollector) RecordCheckpointReset(ctx context.Context) {
	if m == nil || m.checkpointResets == nil {
		return
	}
	m.checkpointResets.Add(ctx, 1)
}

// RecordSessionSave counts a session log save attempt
func (m *MetricsCollector) RecordSessionSave(ctx context.Context, outcome string) {
	if m == nil || m.sessionSaves == nil {
		return
	}
	m.sessionSaves.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
