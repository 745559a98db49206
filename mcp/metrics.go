package mcp

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"
)

const (
	// MeterName scopes the server's instruments.
	MeterName = "github.com/emeryray2002/mcp-secops-v3/mcp"
	// MetricToolCalls counts tool invocations by tool and outcome.
	MetricToolCalls = "secops.mcp.tool.calls"
)

type toolMetrics struct {
	calls metric.Int64Counter
}

func newToolMetrics(logger pslog.Logger) *toolMetrics {
	meter := otel.Meter(MeterName)
	m := &toolMetrics{}
	var err error
	m.calls, err = meter.Int64Counter(
		MetricToolCalls,
		metric.WithDescription("MCP tool invocations by tool and outcome"),
	)
	if err != nil && logger != nil {
		logger.Warn("telemetry.metric.init_failed", "name", MetricToolCalls, "error", err)
	}
	return m
}

func (m *toolMetrics) recordCall(ctx context.Context, tool string, err error) {
	if m == nil || m.calls == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = classifyToolError(err).ErrorCode
	}
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("secops.mcp.tool", tool),
		attribute.String("secops.mcp.outcome", outcome),
	))
}
