package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	secops "github.com/emeryray2002/mcp-secops-v3"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/internal/version"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

type recordedRun struct {
	transports []mcp.Transport
	configs    []secops.Config
}

func recordingLauncher(rec *recordedRun) launcher {
	return launcher{
		open: func(ctx context.Context, cfg secops.Config, opts ...secops.Option) (*secops.Runtime, error) {
			rt, err := secops.Open(ctx, cfg, opts...)
			if err == nil {
				rec.configs = append(rec.configs, rt.Config())
			}
			return rt, err
		},
		serve: func(_ context.Context, _ mcp.Server, transport mcp.Transport) error {
			rec.transports = append(rec.transports, transport)
			return nil
		},
	}
}

func executeRootCommand(t *testing.T, l launcher, args ...string) (string, error) {
	t.Helper()
	t.Setenv("SECOPS_CONFIG_DIR", t.TempDir())
	cmd := newRootCommand(loggingutil.NoopLogger(), l)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestRootCommandServesStdio(t *testing.T) {
	var rec recordedRun
	if _, err := executeRootCommand(t, recordingLauncher(&rec), "--access-token", "tok"); err != nil {
		t.Fatalf("root command: %v", err)
	}
	if len(rec.transports) != 1 || rec.transports[0] != mcp.TransportStdio {
		t.Fatalf("expected a single stdio run, got %v", rec.transports)
	}
}

func TestHelpDoesNotPrintAccessToken(t *testing.T) {
	t.Setenv("CHRONICLE_ACCESS_TOKEN", "ya29.secret-token")

	stdout, err := executeRootCommand(t, defaultLauncher(), "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(stdout, "--access-token") {
		t.Fatalf("help output missing access-token flag:\n%s", stdout)
	}
	if strings.Contains(stdout, "ya29.secret-token") {
		t.Fatalf("help output leaked the access token:\n%s", stdout)
	}
}

func TestAccessTokenFromEnvironment(t *testing.T) {
	t.Setenv("CHRONICLE_ACCESS_TOKEN", "env-token")

	var rec recordedRun
	if _, err := executeRootCommand(t, recordingLauncher(&rec)); err != nil {
		t.Fatalf("root command: %v", err)
	}
	if len(rec.configs) != 1 || rec.configs[0].AccessToken != "env-token" {
		t.Fatalf("expected token from CHRONICLE_ACCESS_TOKEN, got %+v", rec.configs)
	}
}

func TestRootCommandUsesEnvironmentInstance(t *testing.T) {
	t.Setenv("CHRONICLE_PROJECT_ID", "")
	t.Setenv("CHRONICLE_CUSTOMER_ID", "cust-env")
	t.Setenv("CHRONICLE_REGION", "eu")
	t.Setenv("SECOPS_MCP_QPS", "2.5")

	var rec recordedRun
	if _, err := executeRootCommand(t, recordingLauncher(&rec), "--access-token", "tok"); err != nil {
		t.Fatalf("root command: %v", err)
	}
	if len(rec.configs) != 1 {
		t.Fatalf("expected one runtime, got %d", len(rec.configs))
	}
	cfg := rec.configs[0]
	if cfg.Instance.ProjectID != "your-google-cloud-project-id" || cfg.Instance.CustomerID != "cust-env" || cfg.Instance.Region != "eu" {
		t.Fatalf("unexpected instance %+v", cfg.Instance)
	}
	if cfg.QPS != 2.5 {
		t.Fatalf("expected qps from SECOPS_MCP_QPS, got %v", cfg.QPS)
	}
}

func TestHTTPCommandServesHTTP(t *testing.T) {
	var rec recordedRun
	_, err := executeRootCommand(t, recordingLauncher(&rec),
		"http", "--access-token", "tok", "--listen", "127.0.0.1:9999", "--mcp-path", "/secops")
	if err != nil {
		t.Fatalf("http command: %v", err)
	}
	if len(rec.transports) != 1 || rec.transports[0] != mcp.TransportHTTP {
		t.Fatalf("expected a single http run, got %v", rec.transports)
	}
	if got := rec.configs[0].MCP; got.Listen != "127.0.0.1:9999" || got.MCPPath != "/secops" {
		t.Fatalf("unexpected mcp config %+v", got)
	}
}

func TestRootCommandRejectsBadSize(t *testing.T) {
	var rec recordedRun
	_, err := executeRootCommand(t, recordingLauncher(&rec), "--access-token", "tok", "--max-response-size", "lots")
	if err == nil || !strings.Contains(err.Error(), "max-response-size") {
		t.Fatalf("expected max-response-size error, got %v", err)
	}
	if len(rec.transports) != 0 {
		t.Fatalf("server should not run on config error")
	}
}

func TestVersionCommandPrintsCurrentVersion(t *testing.T) {
	stdout, err := executeRootCommand(t, defaultLauncher(), "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	want := version.Module() + " " + version.Current() + "\n"
	if stdout != want {
		t.Fatalf("unexpected stdout: got %q want %q", stdout, want)
	}
}

func TestConfigGenStdout(t *testing.T) {
	stdout, err := executeRootCommand(t, defaultLauncher(), "config", "gen", "--stdout")
	if err != nil {
		t.Fatalf("config gen: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	for _, key := range []string{"project-id", "region", "max-response-size", "evidence-store", "trace-sample-ratio", "listen"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("generated config missing %q:\n%s", key, stdout)
		}
	}
	if _, ok := decoded["access-token"]; ok {
		t.Fatalf("generated config must not carry credentials")
	}
	if decoded["max-response-size"] != "64MiB" {
		t.Fatalf("unexpected max-response-size %v", decoded["max-response-size"])
	}
}

func TestToolsCommandPrintsToolsList(t *testing.T) {
	stdout, err := executeRootCommand(t, defaultLauncher(), "tools")
	if err != nil {
		t.Fatalf("tools command: %v", err)
	}
	var decoded mcp.ToolsListResponse
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode tools list: %v", err)
	}
	if len(decoded.Result.Tools) != 7 {
		t.Fatalf("expected 7 tools, got %d", len(decoded.Result.Tools))
	}
}
