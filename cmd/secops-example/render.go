package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/emeryray2002/mcp-secops-v3/mcp"
)

const unknown = "Unknown"

func renderEvents(out io.Writer, res mcp.SearchEventsResult) {
	fmt.Fprintf(out, "Found %d events, showing details for %d events:\n", res.TotalEvents, len(res.Events))
	for i, env := range res.Events {
		event := env.Event
		metadata := object(event, "metadata")
		fmt.Fprintf(out, "\nEvent %d:\n", i+1)
		fmt.Fprintf(out, "  Time: %s\n", stringOr(metadata, "eventTimestamp"))
		fmt.Fprintf(out, "  Type: %s\n", stringOr(metadata, "eventType"))

		principal := object(event, "principal")
		if v, ok := principal["ip"]; ok {
			fmt.Fprintf(out, "  Source IP: %s\n", joinValues(v))
		}
		if v, ok := principal["port"]; ok {
			fmt.Fprintf(out, "  Source Port: %s\n", scalar(v))
		}

		target := object(event, "target")
		if v, ok := target["ip"]; ok {
			fmt.Fprintf(out, "  Target IP: %s\n", joinValues(v))
		}
		if v, ok := target["port"]; ok {
			fmt.Fprintf(out, "  Target Port: %s\n", scalar(v))
		}

		network := object(event, "network")
		if v, ok := network["ipProtocol"]; ok {
			fmt.Fprintf(out, "  Protocol: %s\n", scalar(v))
		}
		if v, ok := firstKey(network, "applicationProtocol", "application_protocol"); ok {
			fmt.Fprintf(out, "  Application: %s\n", scalar(v))
		}
	}
}

func renderJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("render result: %w", err)
	}
	return nil
}

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	obj, _ := m[key].(map[string]any)
	return obj
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringOr(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return unknown
	}
	return scalar(v)
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return unknown
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func joinValues(v any) string {
	switch t := v.(type) {
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, scalar(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		return scalar(v)
	}
}
