package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestBuildToolsListResponseJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := BuildToolsListResponseJSON(ctx, Config{Instance: testInstance})
	if err != nil {
		t.Fatalf("build tools list json: %v", err)
	}

	var decoded ToolsListResponse
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.JSONRPC != "2.0" || decoded.ID != 1 {
		t.Fatalf("unexpected envelope %+v", decoded)
	}
	found := map[string]bool{}
	for _, tool := range decoded.Result.Tools {
		if tool != nil {
			found[tool.Name] = true
		}
	}
	for _, want := range mcpToolNames {
		if !found[want] {
			t.Fatalf("missing tool %q in tools/list output", want)
		}
	}
}
