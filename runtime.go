package secops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/evidence"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/internal/retry"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

// Runtime bundles the Chronicle client, toolkit, evidence archive, and
// telemetry exporters built from a Config.
type Runtime struct {
	cfg       Config
	client    *chronicle.Client
	toolkit   *mcp.Toolkit
	archive   *evidence.Archive
	telemetry *telemetry
	logger    pslog.Logger
}

// Option customises Open.
type Option func(*openOptions)

type openOptions struct {
	logger      pslog.Logger
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
	getenv      func(string) string
}

// WithLogger sets the base logger.
func WithLogger(logger pslog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithTokenSource injects Chronicle credentials, bypassing ADC.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *openOptions) {
		o.tokenSource = ts
	}
}

// WithHTTPClient replaces the authenticated Chronicle HTTP client.
func WithHTTPClient(cli *http.Client) Option {
	return func(o *openOptions) {
		o.httpClient = cli
	}
}

// WithGetenv replaces os.Getenv for evidence store credentials.
func WithGetenv(getenv func(string) string) Option {
	return func(o *openOptions) {
		o.getenv = getenv
	}
}

// Open validates cfg and wires the runtime. Close releases everything Open
// started.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Runtime, error) {
	o := openOptions{getenv: os.Getenv}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := loggingutil.EnsureLogger(o.logger)

	tel, err := startTelemetry(ctx, telemetrySettingsFrom(cfg), loggingutil.WithSubsystem(logger, "telemetry"))
	if err != nil {
		return nil, err
	}
	rt := &Runtime{cfg: cfg, telemetry: tel, logger: logger}

	clientOpts := []chronicle.Option{
		chronicle.WithLogger(logger),
		chronicle.WithRateLimit(cfg.QPS, cfg.Burst),
		chronicle.WithRetry(retry.Config{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Multiplier:  chronicle.DefaultRetry.Multiplier,
		}),
		chronicle.WithTimeout(cfg.RequestTimeout),
		chronicle.WithMaxResponseBytes(cfg.MaxResponseBytes),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, chronicle.WithEndpoint(cfg.BaseURL))
	}
	switch {
	case o.httpClient != nil:
		clientOpts = append(clientOpts, chronicle.WithHTTPClient(o.httpClient))
	case o.tokenSource != nil:
		clientOpts = append(clientOpts, chronicle.WithTokenSource(o.tokenSource))
	case cfg.AccessToken != "":
		clientOpts = append(clientOpts, chronicle.WithAccessToken(cfg.AccessToken))
	}
	rt.client, err = chronicle.New(ctx, cfg.Instance, clientOpts...)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("chronicle client: %w", err)
	}

	rt.archive, err = evidence.Open(ctx, cfg.EvidenceStore, o.getenv,
		evidence.WithLogger(logger),
		evidence.WithPrefix(cfg.EvidencePrefix),
	)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("evidence store: %w", err)
	}

	rt.toolkit = mcp.NewToolkit(rt.client,
		mcp.WithToolkitLogger(logger),
		mcp.WithArchive(rt.archive),
		mcp.WithRulesCache(cfg.RulesCacheSize, cfg.RulesCacheTTL),
		mcp.WithEntityCache(cfg.EntityCacheSize, cfg.EntityCacheTTL),
	)
	logger.Debug("runtime.opened",
		"project_id", cfg.Instance.ProjectID,
		"customer_id", cfg.Instance.CustomerID,
		"region", cfg.Instance.Region,
		"evidence", rt.archive != nil,
		"metrics", rt.telemetry.MetricsAddr(),
	)
	return rt, nil
}

// Config returns the validated configuration.
func (r *Runtime) Config() Config { return r.cfg }

// Client returns the Chronicle client.
func (r *Runtime) Client() *chronicle.Client { return r.client }

// Toolkit returns the SecOps toolkit.
func (r *Runtime) Toolkit() *mcp.Toolkit { return r.toolkit }

// MetricsAddr reports the Prometheus listener address, or "".
func (r *Runtime) MetricsAddr() string { return r.telemetry.MetricsAddr() }

// NewMCPServer builds the MCP server over the runtime's toolkit.
func (r *Runtime) NewMCPServer() (mcp.Server, error) {
	return mcp.NewServer(mcp.NewServerRequest{
		Config:  r.cfg.MCP,
		Toolkit: r.toolkit,
		Logger:  r.logger,
	})
}

// Close flushes telemetry and closes the evidence archive.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if err := r.archive.Close(); err != nil {
		errs = append(errs, fmt.Errorf("evidence close: %w", err))
	}
	if err := r.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
