package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	secops "github.com/emeryray2002/mcp-secops-v3"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage secops-mcp configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.secops-mcp/config.yaml"
	if p, err := secops.DefaultConfigPath(); err == nil {
		defaultOutput = p
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default secops-mcp configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}
			if stdout {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if outPath == "" {
				p, err := secops.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				outPath = p
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

// configDefaults mirrors the launcher flags. Credentials are deliberately
// absent; use CHRONICLE_ACCESS_TOKEN or ADC.
type configDefaults struct {
	ProjectID              string  `yaml:"project-id"`
	CustomerID             string  `yaml:"customer-id"`
	Region                 string  `yaml:"region"`
	BaseURL                string  `yaml:"base-url"`
	QPS                    float64 `yaml:"qps"`
	Burst                  int     `yaml:"burst"`
	RequestTimeout         string  `yaml:"request-timeout"`
	MaxResponseSize        string  `yaml:"max-response-size"`
	RetryAttempts          int     `yaml:"retry-attempts"`
	RetryBaseDelay         string  `yaml:"retry-base-delay"`
	RetryMaxDelay          string  `yaml:"retry-max-delay"`
	RulesCacheSize         int     `yaml:"rules-cache-size"`
	RulesCacheTTL          string  `yaml:"rules-cache-ttl"`
	EntityCacheSize        int     `yaml:"entity-cache-size"`
	EntityCacheTTL         string  `yaml:"entity-cache-ttl"`
	EvidenceStore          string  `yaml:"evidence-store"`
	EvidencePrefix         string  `yaml:"evidence-prefix"`
	OTLPEndpoint           string  `yaml:"otlp-endpoint"`
	TraceSampleRatio       float64 `yaml:"trace-sample-ratio"`
	MetricsListen          string  `yaml:"metrics-listen"`
	EnableProfilingMetrics bool    `yaml:"enable-profiling-metrics"`
	Listen                 string  `yaml:"listen"`
	MCPPath                string  `yaml:"mcp-path"`
	ShutdownTimeout        string  `yaml:"shutdown-timeout"`
	LogLevel               string  `yaml:"log-level"`
}

func defaultConfigYAML(overrides ...func(*configDefaults)) ([]byte, error) {
	cfg := secops.DefaultConfig()
	defaults := configDefaults{
		ProjectID:              cfg.Instance.ProjectID,
		CustomerID:             cfg.Instance.CustomerID,
		Region:                 cfg.Instance.Region,
		BaseURL:                cfg.BaseURL,
		QPS:                    cfg.QPS,
		Burst:                  cfg.Burst,
		RequestTimeout:         cfg.RequestTimeout.String(),
		MaxResponseSize:        humanizeBytes(cfg.MaxResponseBytes),
		RetryAttempts:          cfg.RetryMaxAttempts,
		RetryBaseDelay:         cfg.RetryBaseDelay.String(),
		RetryMaxDelay:          cfg.RetryMaxDelay.String(),
		RulesCacheSize:         cfg.RulesCacheSize,
		RulesCacheTTL:          cfg.RulesCacheTTL.String(),
		EntityCacheSize:        cfg.EntityCacheSize,
		EntityCacheTTL:         cfg.EntityCacheTTL.String(),
		EvidenceStore:          "",
		EvidencePrefix:         cfg.EvidencePrefix,
		OTLPEndpoint:           "",
		TraceSampleRatio:       cfg.TraceSampleRatio,
		MetricsListen:          cfg.MetricsListen,
		EnableProfilingMetrics: false,
		Listen:                 cfg.MCP.Listen,
		MCPPath:                cfg.MCP.MCPPath,
		ShutdownTimeout:        cfg.MCP.ShutdownTimeout.String(),
		LogLevel:               "info",
	}
	for _, fn := range overrides {
		if fn != nil {
			fn(&defaults)
		}
	}

	out, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
