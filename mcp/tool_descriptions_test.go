package mcp

import (
	"strings"
	"testing"
)

func TestBuildToolDescriptionsCoverage(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(Config{Instance: testInstance})
	if len(descriptions) != len(mcpToolNames) {
		t.Fatalf("expected %d tool descriptions, got %d", len(mcpToolNames), len(descriptions))
	}
	required := []string{"Purpose:", "Use when:", "Requires:", "Effects:", "Retry:", "Next:"}
	for _, name := range mcpToolNames {
		description, ok := descriptions[name]
		if !ok || strings.TrimSpace(description) == "" {
			t.Fatalf("missing description for %s", name)
		}
		for _, marker := range required {
			if !strings.Contains(description, marker) {
				t.Fatalf("description for %s missing marker %q: %q", name, marker, description)
			}
		}
	}
}

func TestBuildToolDescriptionsIncludeConfiguredInstance(t *testing.T) {
	t.Parallel()

	descriptions := buildToolDescriptions(Config{Instance: testInstance})
	want := `project "proj", customer "cust", region "us"`
	for _, name := range []string{toolSearchEvents, toolGetAlerts, toolListRules} {
		if !strings.Contains(descriptions[name], want) {
			t.Fatalf("%s description missing instance defaults: %q", name, descriptions[name])
		}
	}
}
