package secops

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
)

func TestResolveOTLPTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want otlpTarget
	}{
		{"collector", otlpTarget{protocol: "grpc", endpoint: "collector:4317", insecure: true}},
		{"collector:9000", otlpTarget{protocol: "grpc", endpoint: "collector:9000", insecure: true}},
		{"grpc://collector", otlpTarget{protocol: "grpc", endpoint: "collector:4317", insecure: true}},
		{"grpcs://collector:443", otlpTarget{protocol: "grpc", endpoint: "collector:443"}},
		{"http://collector", otlpTarget{protocol: "http", endpoint: "collector:4318", insecure: true}},
		{"https://collector/otlp/v1/traces/", otlpTarget{protocol: "http", endpoint: "collector:4318", path: "/otlp/v1/traces"}},
	}
	for _, tc := range tests {
		got, err := resolveOTLPTarget(tc.raw)
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.raw, tc.want, got)
		}
	}
	for _, raw := range []string{"", "ftp://collector", "http://"} {
		if _, err := resolveOTLPTarget(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestStartTelemetryDisabled(t *testing.T) {
	t.Parallel()

	tel, err := startTelemetry(context.Background(), telemetrySettingsFrom(DefaultConfig()), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if tel != nil {
		t.Fatalf("expected nil telemetry when tracing and metrics are off")
	}
	if tel.MetricsAddr() != "" {
		t.Fatalf("expected empty metrics address")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
}

func TestStartTelemetryRejectsBadEndpoint(t *testing.T) {
	t.Parallel()

	_, err := startTelemetry(context.Background(), telemetrySettings{otlpEndpoint: "ftp://collector"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown otlp scheme") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}

func TestTelemetryServesChronicleLatencyBuckets(t *testing.T) {
	ctx := context.Background()
	settings := telemetrySettings{
		instance:      chronicle.Instance{ProjectID: "proj", CustomerID: "cust", Region: "eu"},
		metricsListen: "127.0.0.1:0",
	}
	tel, err := startTelemetry(ctx, settings, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	hist, err := tel.meter.Meter(chronicle.MeterName).Float64Histogram(chronicle.MetricRequestDuration, metric.WithUnit("s"))
	if err != nil {
		t.Fatalf("histogram: %v", err)
	}
	hist.Record(ctx, 42)

	resp, err := http.Get("http://" + tel.MetricsAddr() + "/metrics")
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", resp.StatusCode)
	}
	text := string(body)
	if !strings.Contains(text, "secops_chronicle_request_duration") {
		t.Fatalf("scrape missing chronicle latency histogram:\n%s", text)
	}
	if !strings.Contains(text, `le="300"`) {
		t.Fatalf("scrape missing extended latency bucket:\n%s", text)
	}
}
