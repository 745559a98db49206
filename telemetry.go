package secops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/internal/version"
)

const (
	serviceName       = "secops-mcp"
	otlpExportTimeout = 10 * time.Second
)

// telemetrySettings is the slice of Config the telemetry layer reads.
type telemetrySettings struct {
	instance       chronicle.Instance
	otlpEndpoint   string
	sampleRatio    float64
	metricsListen  string
	runtimeMetrics bool
}

func telemetrySettingsFrom(cfg Config) telemetrySettings {
	return telemetrySettings{
		instance:       cfg.Instance,
		otlpEndpoint:   strings.TrimSpace(cfg.OTLPEndpoint),
		sampleRatio:    cfg.TraceSampleRatio,
		metricsListen:  strings.TrimSpace(cfg.MetricsListen),
		runtimeMetrics: cfg.EnableProfilingMetrics,
	}
}

func (s telemetrySettings) enabled() bool {
	return s.otlpEndpoint != "" || s.metricsListen != ""
}

// telemetry owns the providers and the Prometheus listener started for a
// Runtime. A nil *telemetry is valid and does nothing.
type telemetry struct {
	tracer   *sdktrace.TracerProvider
	meter    *sdkmetric.MeterProvider
	server   *http.Server
	listener net.Listener
	logger   pslog.Logger
}

// startTelemetry installs the global tracer and meter providers used by the
// Chronicle client and the MCP server. It returns nil when neither tracing
// nor metrics is configured.
func startTelemetry(ctx context.Context, s telemetrySettings, logger pslog.Logger) (*telemetry, error) {
	if !s.enabled() {
		return nil, nil
	}
	t := &telemetry{logger: loggingutil.EnsureLogger(logger)}
	res, err := serviceResource(ctx, s.instance)
	if err != nil {
		return nil, err
	}
	if s.otlpEndpoint != "" {
		if err := t.startTracing(ctx, s, res); err != nil {
			return nil, err
		}
	}
	if s.metricsListen != "" {
		if err := t.startMetrics(s, res); err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(exportErrorHandler{logger: t.logger})
	return t, nil
}

// serviceResource tags every span and metric with the default Chronicle
// tenant so several servers can share one collector.
func serviceResource(ctx context.Context, inst chronicle.Instance) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.Current()),
			attribute.String("secops.chronicle.project_id", inst.ProjectID),
			attribute.String("secops.chronicle.customer_id", inst.CustomerID),
			attribute.String("secops.chronicle.region", inst.Region),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}
	return res, nil
}

func (t *telemetry) startTracing(ctx context.Context, s telemetrySettings, res *resource.Resource) error {
	target, err := resolveOTLPTarget(s.otlpEndpoint)
	if err != nil {
		return err
	}
	exporter, err := newSpanExporter(ctx, target)
	if err != nil {
		return fmt.Errorf("telemetry: start %s span exporter: %w", target.protocol, err)
	}
	ratio := s.sampleRatio
	if ratio <= 0 {
		ratio = DefaultTraceSampleRatio
	}
	t.tracer = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(t.tracer)
	t.logger.Info("telemetry.tracing.enabled",
		"protocol", target.protocol,
		"endpoint", target.endpoint,
		"insecure", target.insecure,
		"sample_ratio", ratio,
	)
	return nil
}

func newSpanExporter(ctx context.Context, target otlpTarget) (sdktrace.SpanExporter, error) {
	switch target.protocol {
	case otlpGRPC:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(target.endpoint),
			otlptracegrpc.WithTimeout(otlpExportTimeout),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(version.UserAgent())),
		}
		if target.insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlptracegrpc.New(ctx, opts...)
	case otlpHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(target.endpoint),
			otlptracehttp.WithTimeout(otlpExportTimeout),
			otlptracehttp.WithHeaders(map[string]string{"User-Agent": version.UserAgent()}),
		}
		if target.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if target.path != "" {
			opts = append(opts, otlptracehttp.WithURLPath(target.path))
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported protocol %q", target.protocol)
	}
}

// metricViews shapes the instruments the Chronicle client and MCP server
// register; the SDK default buckets top out at 10s, below a slow UDM search.
func metricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: chronicle.MetricRequestDuration, Scope: instrumentation.Scope{Name: chronicle.MeterName}},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: chronicle.RequestDurationBuckets,
			}},
		),
	}
}

func (t *telemetry) startMetrics(s telemetrySettings, res *resource.Resource) error {
	registry := prometheus.NewRegistry()
	exporterOpts := []otelprometheus.Option{otelprometheus.WithRegisterer(registry)}
	if s.runtimeMetrics {
		exporterOpts = append(exporterOpts, otelprometheus.WithProducer(otelruntime.NewProducer()))
	}
	exporter, err := otelprometheus.New(exporterOpts...)
	if err != nil {
		return fmt.Errorf("telemetry: start prometheus exporter: %w", err)
	}
	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}
	for _, view := range metricViews() {
		providerOpts = append(providerOpts, sdkmetric.WithView(view))
	}
	t.meter = sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(t.meter)

	if s.runtimeMetrics {
		if err := otelruntime.Start(otelruntime.WithMeterProvider(t.meter)); err != nil {
			return fmt.Errorf("telemetry: start runtime metrics: %w", err)
		}
		t.logger.Info("telemetry.runtime_metrics.enabled")
	}

	ln, err := net.Listen("tcp", s.metricsListen)
	if err != nil {
		return fmt.Errorf("telemetry: metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	t.listener = ln
	t.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := t.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Warn("telemetry.metrics.serve_error", "error", err)
		}
	}()
	t.logger.Info("telemetry.metrics.enabled", "listen", ln.Addr().String())
	return nil
}

// MetricsAddr reports the bound Prometheus address, or "" when metrics are off.
func (t *telemetry) MetricsAddr() string {
	if t == nil || t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Shutdown stops scrapes first, then flushes metrics and spans.
func (t *telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.server != nil {
		if err := t.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("metrics listener: %w", err))
		}
	}
	if t.meter != nil {
		if err := t.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		t.logger.Warn("telemetry.shutdown.failed", "error", err)
		return err
	}
	t.logger.Debug("telemetry.shutdown.complete")
	return nil
}

// exportErrorHandler routes OTel SDK errors into the process log. Export
// timeouts are expected while a collector restarts and log at debug.
type exportErrorHandler struct {
	logger pslog.Logger
}

func (h exportErrorHandler) Handle(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		h.logger.Debug("telemetry.export.timeout", "error", err)
		return
	}
	h.logger.Warn("telemetry.export.error", "error", err)
}

const (
	otlpGRPC = "grpc"
	otlpHTTP = "http"
)

type otlpTarget struct {
	protocol string
	endpoint string // host:port
	path     string
	insecure bool
}

var (
	otlpSchemes = map[string]otlpTarget{
		"grpc":  {protocol: otlpGRPC, insecure: true},
		"grpcs": {protocol: otlpGRPC},
		"http":  {protocol: otlpHTTP, insecure: true},
		"https": {protocol: otlpHTTP},
	}
	otlpDefaultPorts = map[string]string{otlpGRPC: "4317", otlpHTTP: "4318"}
)

// resolveOTLPTarget accepts grpc://, grpcs://, http:// and https:// URLs, or a
// bare host[:port] meaning plaintext gRPC. Missing ports get the OTLP defaults.
func resolveOTLPTarget(raw string) (otlpTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: empty otlp endpoint")
	}
	if !strings.Contains(raw, "://") {
		raw = "grpc://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return otlpTarget{}, fmt.Errorf("telemetry: parse otlp endpoint: %w", err)
	}
	target, ok := otlpSchemes[strings.ToLower(u.Scheme)]
	if !ok {
		return otlpTarget{}, fmt.Errorf("telemetry: unknown otlp scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return otlpTarget{}, fmt.Errorf("telemetry: otlp endpoint %q has no host", raw)
	}
	target.endpoint = u.Host
	if u.Port() == "" {
		target.endpoint = net.JoinHostPort(u.Hostname(), otlpDefaultPorts[target.protocol])
	}
	target.path = strings.TrimSuffix(u.Path, "/")
	return target, nil
}
