package chronicle

import (
	"context"
	"net/url"
	"strconv"
)

const rulesPageSize = 1000

// maxRulePages stops runaway pagination.
const maxRulePages = 100

type rulesPage struct {
	Rules         []map[string]any `json:"rules"`
	NextPageToken string           `json:"nextPageToken"`
}

// ListRules returns every detection rule in the instance.
func (c *Client) ListRules(ctx context.Context) ([]map[string]any, error) {
	rules := []map[string]any{}
	token := ""
	for page := 0; page < maxRulePages; page++ {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(rulesPageSize))
		q.Set("view", "FULL")
		if token != "" {
			q.Set("pageToken", token)
		}
		var out rulesPage
		if err := c.getJSON(ctx, "list_rules", "/rules", q, &out); err != nil {
			return nil, err
		}
		rules = append(rules, out.Rules...)
		if out.NextPageToken == "" {
			return rules, nil
		}
		token = out.NextPageToken
	}
	c.logger.Warn("chronicle.rules.page_limit", "pages", maxRulePages, "rules", len(rules))
	return rules, nil
}
