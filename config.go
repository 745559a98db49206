package secops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

const (
	// DefaultListen is the streamable HTTP listen address.
	DefaultListen = "127.0.0.1:8765"
	// DefaultMCPPath is the streamable HTTP mount path.
	DefaultMCPPath = "/mcp"
	// DefaultShutdownTimeout caps HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultRulesCacheSize caps cached rule listings (one per instance).
	DefaultRulesCacheSize = 64
	// DefaultRulesCacheTTL bounds how stale a cached rule listing may be.
	DefaultRulesCacheTTL = 5 * time.Minute
	// DefaultEntityCacheSize caps cached entity summaries.
	DefaultEntityCacheSize = 256
	// DefaultEntityCacheTTL bounds how stale a cached entity summary may be.
	DefaultEntityCacheTTL = 2 * time.Minute
	// DefaultEvidencePrefix prefixes archived record keys.
	DefaultEvidencePrefix = "evidence"
	// DefaultMetricsListen is empty; metrics are off unless configured.
	DefaultMetricsListen = ""
	// DefaultTraceSampleRatio samples every root span.
	DefaultTraceSampleRatio = 1.0
)

// Config captures everything needed to build a Runtime.
type Config struct {
	// Instance is the default Chronicle tenant.
	Instance chronicle.Instance
	// AccessToken is a static bearer token. Empty selects ADC.
	AccessToken string
	// BaseURL overrides the regional Chronicle endpoint.
	BaseURL string

	QPS              float64
	Burst            int
	RequestTimeout   time.Duration
	MaxResponseBytes int64
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	RulesCacheSize  int
	RulesCacheTTL   time.Duration
	EntityCacheSize int
	EntityCacheTTL  time.Duration

	// EvidenceStore is an archive URL (mem://, disk:///path, s3://, aws://, azure://). Empty disables archiving.
	EvidenceStore  string
	EvidencePrefix string

	OTLPEndpoint string
	// TraceSampleRatio is the fraction of root spans exported, in (0, 1].
	// Zero selects DefaultTraceSampleRatio.
	TraceSampleRatio       float64
	MetricsListen          string
	EnableProfilingMetrics bool

	// MCP is passed to the MCP server. Its Instance is filled from Instance.
	MCP mcp.Config
}

// DefaultConfig returns a Config populated with package defaults and the
// instance named by the CHRONICLE_* environment.
func DefaultConfig() Config {
	retryCfg := chronicle.DefaultRetry
	return Config{
		Instance:         chronicle.InstanceFromEnv(os.LookupEnv),
		AccessToken:      strings.TrimSpace(os.Getenv(chronicle.EnvAccessToken)),
		BaseURL:          strings.TrimSpace(os.Getenv(chronicle.EnvBaseURL)),
		QPS:              chronicle.DefaultQPS,
		Burst:            chronicle.DefaultBurst,
		RequestTimeout:   chronicle.DefaultTimeout,
		MaxResponseBytes: chronicle.DefaultMaxResponseBytes,
		RetryMaxAttempts: retryCfg.MaxAttempts,
		RetryBaseDelay:   retryCfg.BaseDelay,
		RetryMaxDelay:    retryCfg.MaxDelay,
		RulesCacheSize:   DefaultRulesCacheSize,
		RulesCacheTTL:    DefaultRulesCacheTTL,
		EntityCacheSize:  DefaultEntityCacheSize,
		EntityCacheTTL:   DefaultEntityCacheTTL,
		EvidencePrefix:   DefaultEvidencePrefix,
		MetricsListen:    DefaultMetricsListen,
		TraceSampleRatio: DefaultTraceSampleRatio,
		MCP: mcp.Config{
			Listen:          DefaultListen,
			MCPPath:         DefaultMCPPath,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	c.Instance = c.Instance.WithDefaults(chronicle.Instance{
		ProjectID:  chronicle.DefaultProjectID,
		CustomerID: chronicle.DefaultCustomerID,
		Region:     chronicle.DefaultRegion,
	})
	if err := c.Instance.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.QPS < 0 {
		return fmt.Errorf("config: qps must be >= 0")
	}
	if c.Burst < 0 {
		return fmt.Errorf("config: burst must be >= 0")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config: request timeout must be >= 0")
	}
	if c.MaxResponseBytes < 0 {
		return fmt.Errorf("config: max response bytes must be >= 0")
	}
	if c.RetryMaxAttempts < 0 {
		return fmt.Errorf("config: retry max attempts must be >= 0")
	}
	if c.RetryMaxDelay > 0 && c.RetryBaseDelay > c.RetryMaxDelay {
		return fmt.Errorf("config: retry base delay must not exceed retry max delay")
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("config: trace sample ratio must be within [0, 1]")
	}
	if c.TraceSampleRatio == 0 {
		c.TraceSampleRatio = DefaultTraceSampleRatio
	}
	if c.EnableProfilingMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	if strings.TrimSpace(c.EvidencePrefix) == "" {
		c.EvidencePrefix = DefaultEvidencePrefix
	}
	if c.MCP.ShutdownTimeout < 0 {
		return fmt.Errorf("config: shutdown timeout must be >= 0")
	}
	c.MCP.Instance = c.Instance
	return nil
}

// DefaultConfigDir returns the default configuration directory ($HOME/.secops-mcp).
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("SECOPS_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".secops-mcp"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
