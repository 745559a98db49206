package chronicle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// IoCMatches is the decoded enterprise-wide IoC search response.
type IoCMatches struct {
	Matches           []map[string]any `json:"matches"`
	MoreDataAvailable bool             `json:"moreDataAvailable"`
}

// ListIoCMatches returns indicators from threat intel feeds that were seen in
// the instance during window.
func (c *Client) ListIoCMatches(ctx context.Context, window TimeRange, maxMatches int) (*IoCMatches, error) {
	if maxMatches <= 0 {
		return nil, fmt.Errorf("chronicle: max matches must be positive")
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	q := url.Values{}
	window.encode(q, "timestampRange")
	q.Set("maxMatchesToReturn", strconv.Itoa(maxMatches))
	var out IoCMatches
	if err := c.getJSON(ctx, "list_ioc_matches", "/legacy:legacySearchEnterpriseWideIoCs", q, &out); err != nil {
		return nil, err
	}
	if out.Matches == nil {
		out.Matches = []map[string]any{}
	}
	return &out, nil
}
