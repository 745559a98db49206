package secops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

func TestOpenWiresToolkitAndEvidence(t *testing.T) {
	t.Parallel()

	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case auth <- r.Header.Get("Authorization"):
		default:
		}
		if !strings.HasSuffix(r.URL.Path, "/projects/proj/locations/us/instances/cust/rules") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rules":[{"name":"rules/1","displayName":"demo"}]}`))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Instance = chronicle.Instance{ProjectID: "proj", CustomerID: "cust", Region: "us"}
	cfg.AccessToken = "static-token"
	cfg.BaseURL = srv.URL
	cfg.QPS = 0
	cfg.EvidenceStore = "disk://" + filepath.ToSlash(dir)
	cfg.EvidencePrefix = "runs"

	ctx := context.Background()
	rt, err := Open(ctx, cfg, WithGetenv(func(string) string { return "" }))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close(ctx)

	if rt.Client().Instance() != cfg.Instance {
		t.Fatalf("unexpected client instance %+v", rt.Client().Instance())
	}
	out, err := rt.Toolkit().ListSecurityRules(ctx, mcp.ListRulesInput{})
	if err != nil {
		t.Fatalf("list rules: %v", err)
	}
	if out.TotalRules != 1 {
		t.Fatalf("unexpected rules %+v", out)
	}
	if got := <-auth; got != "Bearer static-token" {
		t.Fatalf("unexpected authorization %q", got)
	}

	var files []string
	err = filepath.Walk(filepath.Join(dir, "runs"), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk evidence: %v", err)
	}
	if len(files) != 1 || !strings.Contains(filepath.ToSlash(files[0]), "/list_security_rules/") {
		t.Fatalf("expected one archived list_security_rules record, got %v", files)
	}

	if _, err := rt.NewMCPServer(); err != nil {
		t.Fatalf("new mcp server: %v", err)
	}
}

func TestOpenRejectsBadEvidenceStore(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AccessToken = "tok"
	cfg.EvidenceStore = "ftp://nowhere"
	if _, err := Open(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "evidence store") {
		t.Fatalf("expected evidence store error, got %v", err)
	}
}
