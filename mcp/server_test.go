package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func connectMCPClientSession(t *testing.T, s *server) (*mcpsdk.ClientSession, func()) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	t1, t2 := mcpsdk.NewInMemoryTransports()
	ss, err := s.mcp.Connect(ctx, t1, nil)
	if err != nil {
		cancel()
		t.Fatalf("server connect: %v", err)
	}
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		_ = ss.Close()
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	return cs, func() {
		_ = cs.Close()
		_ = ss.Close()
		cancel()
	}
}

func extractToolErrorObject(t *testing.T, res *mcpsdk.CallToolResult) map[string]any {
	t.Helper()
	if res == nil {
		t.Fatalf("expected call tool result")
	}
	if !res.IsError {
		t.Fatalf("expected error result")
	}
	if len(res.Content) == 0 {
		t.Fatalf("expected error content entry")
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var content map[string]any
	if err := json.Unmarshal([]byte(text.Text), &content); err != nil {
		t.Fatalf("expected json error envelope text, got %q: %v", text.Text, err)
	}
	errObj, ok := content["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected structured error object, got %#v", content)
	}
	return errObj
}

func toolText(t *testing.T, res *mcpsdk.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestToolsListMatchesRegisteredNames(t *testing.T) {
	t.Parallel()

	s := newServer(Config{Instance: testInstance}, NewToolkit(nil), nil)
	cs, done := connectMCPClientSession(t, s)
	defer done()

	list, err := cs.ListTools(context.Background(), &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	found := map[string]*mcpsdk.Tool{}
	for _, tool := range list.Tools {
		found[tool.Name] = tool
	}
	if len(found) != len(mcpToolNames) {
		t.Fatalf("expected %d tools, got %d", len(mcpToolNames), len(found))
	}
	for _, name := range mcpToolNames {
		tool, ok := found[name]
		if !ok {
			t.Fatalf("missing tool %s", name)
		}
		if tool.Annotations == nil || !tool.Annotations.ReadOnlyHint {
			t.Fatalf("tool %s should be read-only", name)
		}
	}
}

func TestCallSearchEventsOverMCP(t *testing.T) {
	t.Parallel()

	tk := newTestToolkit(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Errorf("unexpected limit %q", got)
		}
		writeJSON(w, `{"events":[{"name":"e1","udm":{"metadata":{"eventType":"USER_LOGIN"}}}]}`)
	})
	s := newServer(Config{}, tk, nil)
	cs, done := connectMCPClientSession(t, s)
	defer done()

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      toolSearchEvents,
		Arguments: map[string]any{"query": `metadata.event_type = "USER_LOGIN"`, "max_events": 5},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, res))
	}
	var out SearchEventsResult
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if out.TotalEvents != 1 || out.Events[0].Name != "e1" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestToolErrorsAreStructured(t *testing.T) {
	t.Parallel()

	tk := newTestToolkit(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})
	s := newServer(Config{}, tk, nil)
	cs, done := connectMCPClientSession(t, s)
	defer done()
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: toolListRules, Arguments: map[string]any{}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	errObj := extractToolErrorObject(t, res)
	if errObj["error_code"] != "resource_exhausted" {
		t.Fatalf("unexpected error code %#v", errObj)
	}
	if errObj["retryable"] != true || errObj["retry_after_seconds"] != float64(7) || errObj["http_status"] != float64(429) {
		t.Fatalf("unexpected retry hints %#v", errObj)
	}

	res, err = cs.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      toolGetAlerts,
		Arguments: map[string]any{"hours_back": 9000},
	})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	errObj = extractToolErrorObject(t, res)
	if errObj["error_code"] != "invalid_argument" || errObj["retryable"] != false {
		t.Fatalf("unexpected validation error %#v", errObj)
	}
}

func TestHelpToolOverMCP(t *testing.T) {
	t.Parallel()

	s := newServer(Config{Instance: testInstance}, NewToolkit(nil), nil)
	cs, done := connectMCPClientSession(t, s)
	defer done()

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      toolHelp,
		Arguments: map[string]any{"topic": "udm"},
	})
	if err != nil {
		t.Fatalf("call help: %v", err)
	}
	var out helpToolOutput
	if err := json.Unmarshal([]byte(toolText(t, res)), &out); err != nil {
		t.Fatalf("decode help: %v", err)
	}
	if out.Topic != "udm" || len(out.Resources) != 1 || out.Resources[0] != docUDMURI {
		t.Fatalf("unexpected help output %+v", out)
	}
	if out.Defaults["project_id"] != "proj" || out.Defaults["hours_back"] != "24" {
		t.Fatalf("unexpected defaults %+v", out.Defaults)
	}
}

func TestHelpTopics(t *testing.T) {
	t.Parallel()

	s := &server{cfg: Config{Instance: testInstance}}
	for _, topic := range []string{"", "overview", "UDM", "alerts", "entities", "rules"} {
		out, err := s.help(context.Background(), helpToolInput{Topic: topic})
		if err != nil {
			t.Fatalf("help %q: %v", topic, err)
		}
		if out.Summary == "" || len(out.NextCalls) == 0 {
			t.Fatalf("help %q returned empty guidance: %+v", topic, out)
		}
	}
	if _, err := s.help(context.Background(), helpToolInput{Topic: "triage"}); err == nil {
		t.Fatalf("expected unknown topic error")
	}
}

func TestDocResources(t *testing.T) {
	t.Parallel()

	s := newServer(Config{}, NewToolkit(nil), nil)
	cs, done := connectMCPClientSession(t, s)
	defer done()
	ctx := context.Background()

	list, err := cs.ListResources(ctx, &mcpsdk.ListResourcesParams{})
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(list.Resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(list.Resources))
	}
	res, err := cs.ReadResource(ctx, &mcpsdk.ReadResourceParams{URI: docUDMURI})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(res.Contents) != 1 || !strings.Contains(res.Contents[0].Text, "metadata.event_type") {
		t.Fatalf("unexpected udm doc %+v", res.Contents)
	}

	if _, err := s.handleDocResource(ctx, &mcpsdk.ReadResourceRequest{
		Params: &mcpsdk.ReadResourceParams{URI: "resource://docs/missing.md"},
	}); err == nil {
		t.Fatalf("expected resource not found error")
	}
}

func TestDefaultServerInstructionsIncludeInstance(t *testing.T) {
	t.Parallel()

	text := defaultServerInstructions(Config{Instance: testInstance})
	for _, want := range []string{`project "proj"`, `customer "cust"`, `region "us"`, "secops_help", "untrusted"} {
		if !strings.Contains(text, want) {
			t.Fatalf("instructions missing %q: %q", want, text)
		}
	}
}

func TestHTTPHandlerServesHealth(t *testing.T) {
	t.Parallel()

	s := newServer(Config{MCPPath: "secops/"}, NewToolkit(nil), nil)
	if s.mcpHTTPPath != "/secops" {
		t.Fatalf("unexpected mcp path %q", s.mcpHTTPPath)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNewServerRequiresToolkit(t *testing.T) {
	t.Parallel()

	if _, err := NewServer(NewServerRequest{}); err == nil {
		t.Fatalf("expected error without toolkit")
	}
	srv, err := NewServer(NewServerRequest{Toolkit: NewToolkit(nil)})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Run(context.Background(), Transport("carrier-pigeon")); err == nil {
		t.Fatalf("expected unknown transport error")
	}
}
