package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	secops "github.com/emeryray2002/mcp-secops-v3"
	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

const envPrefix = "SECOPS_MCP"

// launcher carries the seams the commands use to build and run a server.
type launcher struct {
	open  func(ctx context.Context, cfg secops.Config, opts ...secops.Option) (*secops.Runtime, error)
	serve func(ctx context.Context, srv mcp.Server, transport mcp.Transport) error
}

func defaultLauncher() launcher {
	return launcher{
		open: secops.Open,
		serve: func(ctx context.Context, srv mcp.Server, transport mcp.Transport) error {
			return srv.Run(ctx, transport)
		},
	}
}

func submain(ctx context.Context) int {
	baseLogger := loggingutil.ProcessLogger(os.Stderr, "secops-mcp")
	cmd := newRootCommand(baseLogger, defaultLauncher())
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			loggingutil.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(baseLogger pslog.Logger, l launcher) *cobra.Command {
	v := viper.New()
	defaults := secops.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "secops-mcp",
		Short:         "secops-mcp serves Google SecOps (Chronicle) tools to MCP clients over stdio",
		SilenceErrors: true,
		Example: `
  # Serve over stdio for an MCP client (the default)
  CHRONICLE_PROJECT_ID=my-project CHRONICLE_CUSTOMER_ID=0123-abcd CHRONICLE_REGION=us secops-mcp

  # Archive every tool result on disk
  secops-mcp --evidence-store disk:///var/lib/secops-mcp/evidence

  # Streamable HTTP for local development
  secops-mcp http --listen 127.0.0.1:8765
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServer(cmd.Context(), v, baseLogger, l, mcp.TransportStdio)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.secops-mcp/config.yaml)")
	persistentFlags.String("project-id", defaults.Instance.ProjectID, "Google Cloud project id (env CHRONICLE_PROJECT_ID)")
	persistentFlags.String("customer-id", defaults.Instance.CustomerID, "Chronicle customer id (env CHRONICLE_CUSTOMER_ID)")
	persistentFlags.String("region", defaults.Instance.Region, "Chronicle region, e.g. us, eu, asia-southeast1 (env CHRONICLE_REGION)")
	persistentFlags.String("access-token", "", "static bearer token (env CHRONICLE_ACCESS_TOKEN); empty uses Application Default Credentials")
	persistentFlags.String("base-url", defaults.BaseURL, "override the regional Chronicle endpoint (env CHRONICLE_BASE_URL)")
	persistentFlags.Float64("qps", defaults.QPS, "client-side Chronicle request rate (0 disables limiting)")
	persistentFlags.Int("burst", defaults.Burst, "client-side rate limiter burst")
	persistentFlags.Duration("request-timeout", defaults.RequestTimeout, "timeout for a single Chronicle HTTP attempt")
	persistentFlags.String("max-response-size", humanizeBytes(defaults.MaxResponseBytes), "maximum accepted Chronicle response body (e.g. 64MiB)")
	persistentFlags.Int("retry-attempts", defaults.RetryMaxAttempts, "attempts per Chronicle request, including the first")
	persistentFlags.Duration("retry-base-delay", defaults.RetryBaseDelay, "initial retry backoff")
	persistentFlags.Duration("retry-max-delay", defaults.RetryMaxDelay, "maximum retry backoff")
	persistentFlags.Int("rules-cache-size", defaults.RulesCacheSize, "cached rule listings (0 disables)")
	persistentFlags.Duration("rules-cache-ttl", defaults.RulesCacheTTL, "rule listing cache lifetime")
	persistentFlags.Int("entity-cache-size", defaults.EntityCacheSize, "cached entity summaries (0 disables)")
	persistentFlags.Duration("entity-cache-ttl", defaults.EntityCacheTTL, "entity summary cache lifetime")
	persistentFlags.String("evidence-store", "", "archive tool results (mem://, disk:///path, s3://host/bucket, aws://bucket, azure://account/container); empty disables")
	persistentFlags.String("evidence-prefix", defaults.EvidencePrefix, "key prefix for archived records")
	persistentFlags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	persistentFlags.Float64("trace-sample-ratio", defaults.TraceSampleRatio, "fraction of root spans exported to the OTLP collector, in (0, 1]")
	persistentFlags.String("metrics-listen", defaults.MetricsListen, "Prometheus /metrics listen address (empty disables)")
	persistentFlags.Bool("enable-profiling-metrics", false, "export Go runtime metrics on the Prometheus endpoint")
	persistentFlags.String("log-level", "", "log level (trace, debug, info, warn, error); empty keeps SECOPS_LOG_LEVEL")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{
		"config",
		"project-id", "customer-id", "region", "access-token", "base-url",
		"qps", "burst", "request-timeout", "max-response-size",
		"retry-attempts", "retry-base-delay", "retry-max-delay",
		"rules-cache-size", "rules-cache-ttl", "entity-cache-size", "entity-cache-ttl",
		"evidence-store", "evidence-prefix",
		"otlp-endpoint", "trace-sample-ratio", "metrics-listen", "enable-profiling-metrics", "log-level",
	} {
		mustBindFlag(v, name, persistentFlags.Lookup(name))
	}
	// The token never becomes a flag default, so --help cannot print it.
	if err := v.BindEnv("access-token", envPrefix+"_ACCESS_TOKEN", chronicle.EnvAccessToken); err != nil {
		panic(err)
	}

	cmd.AddCommand(newHTTPCommand(v, baseLogger, l))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newToolsCommand(v))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newHTTPCommand(v *viper.Viper, baseLogger pslog.Logger, l launcher) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve MCP over streamable HTTP (trusted networks only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServer(cmd.Context(), v, baseLogger, l, mcp.TransportHTTP)
		},
	}
	flags := cmd.Flags()
	flags.String("listen", secops.DefaultListen, "listen address")
	flags.String("mcp-path", secops.DefaultMCPPath, "MCP endpoint path")
	flags.Duration("shutdown-timeout", secops.DefaultShutdownTimeout, "graceful shutdown timeout")
	for _, name := range []string{"listen", "mcp-path", "shutdown-timeout"} {
		mustBindFlag(v, name, flags.Lookup(name))
	}
	return cmd
}

func runServer(ctx context.Context, v *viper.Viper, baseLogger pslog.Logger, l launcher, transport mcp.Transport) error {
	configFile, err := loadConfigFile(v)
	if err != nil {
		return err
	}
	logger := loggingutil.ApplyLevel(baseLogger, v.GetString("log-level"))
	cliLogger := loggingutil.WithSubsystem(logger, "cli.root")
	if configFile != "" {
		cliLogger.Info("loaded config file", "path", configFile)
	}

	cfg, err := bindConfig(v)
	if err != nil {
		return err
	}
	rt, err := l.open(ctx, cfg, secops.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			cliLogger.Warn("runtime close failed", "error", err)
		}
	}()

	srv, err := rt.NewMCPServer()
	if err != nil {
		return err
	}
	err = l.serve(ctx, srv, transport)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func bindConfig(v *viper.Viper) (secops.Config, error) {
	cfg := secops.DefaultConfig()
	cfg.Instance.ProjectID = strings.TrimSpace(v.GetString("project-id"))
	cfg.Instance.CustomerID = strings.TrimSpace(v.GetString("customer-id"))
	cfg.Instance.Region = strings.TrimSpace(v.GetString("region"))
	cfg.AccessToken = strings.TrimSpace(v.GetString("access-token"))
	cfg.BaseURL = strings.TrimSpace(v.GetString("base-url"))
	cfg.QPS = v.GetFloat64("qps")
	cfg.Burst = v.GetInt("burst")
	cfg.RequestTimeout = v.GetDuration("request-timeout")
	if raw := strings.TrimSpace(v.GetString("max-response-size")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return secops.Config{}, fmt.Errorf("parse max-response-size: %w", err)
		}
		cfg.MaxResponseBytes = int64(size)
	}
	cfg.RetryMaxAttempts = v.GetInt("retry-attempts")
	cfg.RetryBaseDelay = v.GetDuration("retry-base-delay")
	cfg.RetryMaxDelay = v.GetDuration("retry-max-delay")
	cfg.RulesCacheSize = v.GetInt("rules-cache-size")
	cfg.RulesCacheTTL = v.GetDuration("rules-cache-ttl")
	cfg.EntityCacheSize = v.GetInt("entity-cache-size")
	cfg.EntityCacheTTL = v.GetDuration("entity-cache-ttl")
	cfg.EvidenceStore = strings.TrimSpace(v.GetString("evidence-store"))
	cfg.EvidencePrefix = strings.TrimSpace(v.GetString("evidence-prefix"))
	cfg.OTLPEndpoint = strings.TrimSpace(v.GetString("otlp-endpoint"))
	cfg.TraceSampleRatio = v.GetFloat64("trace-sample-ratio")
	cfg.MetricsListen = strings.TrimSpace(v.GetString("metrics-listen"))
	cfg.EnableProfilingMetrics = v.GetBool("enable-profiling-metrics")
	if listen := strings.TrimSpace(v.GetString("listen")); listen != "" {
		cfg.MCP.Listen = listen
	}
	if p := strings.TrimSpace(v.GetString("mcp-path")); p != "" {
		cfg.MCP.MCPPath = p
	}
	if d := v.GetDuration("shutdown-timeout"); d > 0 {
		cfg.MCP.ShutdownTimeout = d
	}
	return cfg, nil
}

func mustBindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func loadConfigFile(v *viper.Viper) (string, error) {
	cfgPath := strings.TrimSpace(v.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if candidate, err := secops.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
