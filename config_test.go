package secops

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
)

func TestConfigValidateAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Instance: chronicle.Instance{ProjectID: "proj"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Instance.CustomerID != chronicle.DefaultCustomerID || cfg.Instance.Region != chronicle.DefaultRegion {
		t.Fatalf("expected placeholder defaults, got %+v", cfg.Instance)
	}
	if cfg.MCP.Instance != cfg.Instance {
		t.Fatalf("expected MCP instance to follow config, got %+v", cfg.MCP.Instance)
	}
	if cfg.EvidencePrefix != DefaultEvidencePrefix {
		t.Fatalf("expected default evidence prefix, got %q", cfg.EvidencePrefix)
	}
	if cfg.TraceSampleRatio != DefaultTraceSampleRatio {
		t.Fatalf("expected default trace sample ratio, got %v", cfg.TraceSampleRatio)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"negative qps", func(c *Config) { c.QPS = -1 }, "qps"},
		{"negative burst", func(c *Config) { c.Burst = -1 }, "burst"},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, "request timeout"},
		{"negative body cap", func(c *Config) { c.MaxResponseBytes = -1 }, "max response bytes"},
		{"retry delays", func(c *Config) {
			c.RetryBaseDelay = time.Minute
			c.RetryMaxDelay = time.Second
		}, "retry base delay"},
		{"profiling without metrics", func(c *Config) { c.EnableProfilingMetrics = true }, "metrics-listen"},
		{"sample ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }, "trace sample ratio"},
		{"negative sample ratio", func(c *Config) { c.TraceSampleRatio = -0.1 }, "trace sample ratio"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{}
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestDefaultConfigReadsEnvironment(t *testing.T) {
	t.Setenv(chronicle.EnvProjectID, "env-proj")
	t.Setenv(chronicle.EnvCustomerID, "")
	t.Setenv(chronicle.EnvRegion, "eu")
	t.Setenv(chronicle.EnvAccessToken, " tok ")

	cfg := DefaultConfig()
	want := chronicle.Instance{ProjectID: "env-proj", CustomerID: chronicle.DefaultCustomerID, Region: "eu"}
	if cfg.Instance != want {
		t.Fatalf("unexpected instance %+v", cfg.Instance)
	}
	if cfg.AccessToken != "tok" {
		t.Fatalf("unexpected access token %q", cfg.AccessToken)
	}
	if cfg.QPS != chronicle.DefaultQPS || cfg.MCP.Listen != DefaultListen {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestDefaultConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECOPS_CONFIG_DIR", dir)
	got, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("config dir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if path != filepath.Join(dir, "config.yaml") {
		t.Fatalf("unexpected config path %s", path)
	}
}
