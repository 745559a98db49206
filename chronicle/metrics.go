package chronicle

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"pkt.systems/pslog"
)

const (
	// MeterName scopes the client's instruments.
	MeterName = "github.com/emeryray2002/mcp-secops-v3/chronicle"
	// MetricRequests counts API requests by operation and status.
	MetricRequests = "secops.chronicle.requests"
	// MetricRequestDuration records API latency in seconds.
	MetricRequestDuration = "secops.chronicle.request.duration"
)

// RequestDurationBuckets are histogram boundaries, in seconds, sized for
// Chronicle latencies: rule listings return in well under a second while UDM
// searches over long windows can run for minutes.
var RequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

type clientMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newClientMetrics(logger pslog.Logger) *clientMetrics {
	meter := otel.Meter(MeterName)
	m := &clientMetrics{}
	var err error

	m.requests, err = meter.Int64Counter(
		MetricRequests,
		metric.WithDescription("Chronicle API requests by operation and status"),
	)
	logMetricInitError(logger, MetricRequests, err)

	m.duration, err = meter.Float64Histogram(
		MetricRequestDuration,
		metric.WithDescription("Chronicle API request latency"),
		metric.WithUnit("s"),
	)
	logMetricInitError(logger, MetricRequestDuration, err)
	return m
}

func (m *clientMetrics) observe(ctx context.Context, op string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	attrs := metric.WithAttributes(
		attribute.String("secops.chronicle.operation", op),
		attribute.String("secops.chronicle.status", label),
	)
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
