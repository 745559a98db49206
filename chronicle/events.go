package chronicle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// UDMEvent is one search hit. UDM is the open event document.
type UDMEvent struct {
	Name string         `json:"name,omitempty"`
	UDM  map[string]any `json:"udm"`
}

// UDMSearchResult is the decoded :udmSearch response.
type UDMSearchResult struct {
	Events            []UDMEvent `json:"events"`
	MoreDataAvailable bool       `json:"moreDataAvailable"`
}

// SearchUDM runs a UDM query over window and returns at most limit events.
func (c *Client) SearchUDM(ctx context.Context, query string, window TimeRange, limit int) (*UDMSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("chronicle: udm query is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("chronicle: limit must be positive")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("query", query)
	window.encode(q, "timeRange")
	q.Set("limit", strconv.Itoa(limit))

	var out UDMSearchResult
	if err := c.getJSON(ctx, "udm_search", ":udmSearch", q, &out); err != nil {
		return nil, err
	}
	if out.Events == nil {
		out.Events = []UDMEvent{}
	}
	if len(out.Events) > limit {
		out.Events = out.Events[:limit]
		out.MoreDataAvailable = true
	}
	return &out, nil
}
