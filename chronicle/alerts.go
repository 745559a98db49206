package chronicle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// AlertsRequest parameterises GetAlerts.
type AlertsRequest struct {
	Window        TimeRange
	MaxAlerts     int
	SnapshotQuery string
	BaselineQuery string
}

// GetAlerts fetches the legacy alerts view. The endpoint may answer with a
// single object or a JSON array of partial objects; the latter are merged
// into one document.
func (c *Client) GetAlerts(ctx context.Context, req AlertsRequest) (map[string]any, error) {
	if req.MaxAlerts <= 0 {
		return nil, fmt.Errorf("chronicle: max alerts must be positive")
	}
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	req.Window.encode(q, "timeRange")
	q.Set("alertListOptions.maxReturnedAlerts", strconv.Itoa(req.MaxAlerts))
	if req.SnapshotQuery != "" {
		q.Set("snapshotQuery", req.SnapshotQuery)
	}
	if req.BaselineQuery != "" {
		q.Set("baselineQuery", req.BaselineQuery)
	}
	body, err := c.getRaw(ctx, "fetch_alerts", "/legacy:legacyFetchAlertsView", q)
	if err != nil {
		return nil, err
	}
	return decodeStreamedObject(body)
}

func decodeStreamedObject(body []byte) (map[string]any, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return map[string]any{}, nil
	}
	if body[0] == '[' {
		var parts []map[string]any
		if err := json.Unmarshal(body, &parts); err != nil {
			return nil, fmt.Errorf("chronicle: decode streamed response: %w", err)
		}
		merged := map[string]any{}
		for _, part := range parts {
			mergeInto(merged, part)
		}
		return merged, nil
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("chronicle: decode response: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// mergeInto folds src into dst: lists concatenate, objects merge
// recursively, scalars from later chunks win.
func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		switch cur := existing.(type) {
		case []any:
			if next, ok := v.([]any); ok {
				dst[k] = append(cur, next...)
				continue
			}
		case map[string]any:
			if next, ok := v.(map[string]any); ok {
				mergeInto(cur, next)
				continue
			}
		}
		dst[k] = v
	}
}
