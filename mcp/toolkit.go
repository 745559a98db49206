package mcp

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
	"github.com/emeryray2002/mcp-secops-v3/internal/cache"
	"github.com/emeryray2002/mcp-secops-v3/internal/correlation"
	"github.com/emeryray2002/mcp-secops-v3/internal/evidence"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
)

// Operation defaults.
const (
	DefaultHoursBack    = 24
	DefaultMaxEvents    = 100
	DefaultMaxAlerts    = 10
	DefaultMaxMatches   = 20
	DefaultStatusFilter = `feedback_summary.status != "CLOSED"`

	maxHoursBack = chronicle.MaxHoursBack
	maxResults   = 10000
)

// Toolkit implements the SecOps operations on top of a Chronicle client. It
// is shared by the MCP tools and the example driver.
type Toolkit struct {
	client   *chronicle.Client
	archive  *evidence.Archive
	logger   pslog.Logger
	rules    *cache.Cache[[]map[string]any]
	entities *cache.Cache[EntityResult]
}

// ToolkitOption customises a Toolkit.
type ToolkitOption func(*Toolkit)

// WithArchive stores every successful result in archive.
func WithArchive(archive *evidence.Archive) ToolkitOption {
	return func(t *Toolkit) {
		t.archive = archive
	}
}

// WithToolkitLogger sets the toolkit logger.
func WithToolkitLogger(logger pslog.Logger) ToolkitOption {
	return func(t *Toolkit) {
		t.logger = logger
	}
}

// WithRulesCache caches rule listings per instance. size <= 0 disables it.
func WithRulesCache(size int, ttl time.Duration) ToolkitOption {
	return func(t *Toolkit) {
		t.rules = cache.New[[]map[string]any](size, ttl)
	}
}

// WithEntityCache caches entity summaries. size <= 0 disables it.
func WithEntityCache(size int, ttl time.Duration) ToolkitOption {
	return func(t *Toolkit) {
		t.entities = cache.New[EntityResult](size, ttl)
	}
}

// NewToolkit wraps client. The client's instance is the default for every
// operation that does not name one.
func NewToolkit(client *chronicle.Client, opts ...ToolkitOption) *Toolkit {
	t := &Toolkit{
		client:   client,
		rules:    cache.New[[]map[string]any](64, 5*time.Minute),
		entities: cache.New[EntityResult](256, 2*time.Minute),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	t.logger = loggingutil.WithSubsystem(t.logger, "mcp.toolkit")
	return t
}

// DefaultInstance reports the instance used when a call leaves it blank.
func (t *Toolkit) DefaultInstance() chronicle.Instance {
	if t == nil || t.client == nil {
		return chronicle.Instance{}
	}
	return t.client.Instance()
}

// SearchEventsInput parameterises SearchSecurityEvents.
type SearchEventsInput struct {
	Query      string `json:"query" jsonschema:"UDM query, e.g. metadata.event_type = \"NETWORK_CONNECTION\""`
	HoursBack  int    `json:"hours_back,omitempty" jsonschema:"Look-back window in hours (default 24, max 8760)"`
	MaxEvents  int    `json:"max_events,omitempty" jsonschema:"Maximum events to return (default 100)"`
	ProjectID  string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region     string `json:"region,omitempty" jsonschema:"Chronicle region, e.g. us or eu; defaults to the server instance"`
}

// EventEnvelope wraps one UDM event.
type EventEnvelope struct {
	Name  string         `json:"name,omitempty"`
	Event map[string]any `json:"event"`
}

// SearchEventsResult is returned by SearchSecurityEvents.
type SearchEventsResult struct {
	TotalEvents       int             `json:"total_events"`
	Events            []EventEnvelope `json:"events"`
	MoreDataAvailable bool            `json:"more_data_available"`
}

// SearchSecurityEvents runs a UDM search.
func (t *Toolkit) SearchSecurityEvents(ctx context.Context, in SearchEventsInput) (SearchEventsResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchEventsResult{}, fmt.Errorf("query is required")
	}
	hours, err := hoursBack(in.HoursBack)
	if err != nil {
		return SearchEventsResult{}, err
	}
	limit, err := positiveOr("max_events", in.MaxEvents, DefaultMaxEvents)
	if err != nil {
		return SearchEventsResult{}, err
	}
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return SearchEventsResult{}, err
	}
	res, err := cli.SearchUDM(ctx, query, chronicle.LastHours(cli.Now(), hours), limit)
	if err != nil {
		return SearchEventsResult{}, fmt.Errorf("search security events: %w", err)
	}
	out := SearchEventsResult{
		Events:            make([]EventEnvelope, 0, len(res.Events)),
		MoreDataAvailable: res.MoreDataAvailable,
	}
	for _, ev := range res.Events {
		udm := ev.UDM
		if udm == nil {
			udm = map[string]any{}
		}
		out.Events = append(out.Events, EventEnvelope{Name: ev.Name, Event: udm})
	}
	out.TotalEvents = len(out.Events)
	t.archiveResult(ctx, toolSearchEvents, cli.Instance(), in, out)
	return out, nil
}

// AlertsInput parameterises GetSecurityAlerts.
type AlertsInput struct {
	HoursBack    int    `json:"hours_back,omitempty" jsonschema:"Look-back window in hours (default 24, max 8760)"`
	MaxAlerts    int    `json:"max_alerts,omitempty" jsonschema:"Maximum alerts to return (default 10)"`
	StatusFilter string `json:"status_filter,omitempty" jsonschema:"Snapshot query filter (default feedback_summary.status != \"CLOSED\")"`
	ProjectID    string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID   string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region       string `json:"region,omitempty" jsonschema:"Chronicle region; defaults to the server instance"`
}

// AlertsResult is returned by GetSecurityAlerts.
type AlertsResult struct {
	TotalAlerts  int              `json:"total_alerts"`
	Alerts       []map[string]any `json:"alerts"`
	StatusFilter string           `json:"status_filter"`
	Complete     bool             `json:"complete"`
}

// GetSecurityAlerts fetches recent alerts matching the status filter.
func (t *Toolkit) GetSecurityAlerts(ctx context.Context, in AlertsInput) (AlertsResult, error) {
	hours, err := hoursBack(in.HoursBack)
	if err != nil {
		return AlertsResult{}, err
	}
	limit, err := positiveOr("max_alerts", in.MaxAlerts, DefaultMaxAlerts)
	if err != nil {
		return AlertsResult{}, err
	}
	filter := strings.TrimSpace(in.StatusFilter)
	if filter == "" {
		filter = DefaultStatusFilter
	}
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return AlertsResult{}, err
	}
	view, err := cli.GetAlerts(ctx, chronicle.AlertsRequest{
		Window:        chronicle.LastHours(cli.Now(), hours),
		MaxAlerts:     limit,
		SnapshotQuery: filter,
	})
	if err != nil {
		return AlertsResult{}, fmt.Errorf("get security alerts: %w", err)
	}
	out := AlertsResult{
		Alerts:       objectList(nested(view, "alerts", "alerts")),
		StatusFilter: filter,
	}
	if complete, ok := view["complete"].(bool); ok {
		out.Complete = complete
	}
	if len(out.Alerts) > limit {
		out.Alerts = out.Alerts[:limit]
	}
	out.TotalAlerts = len(out.Alerts)
	t.archiveResult(ctx, toolGetAlerts, cli.Instance(), in, out)
	return out, nil
}

// LookupEntityInput parameterises LookupEntity.
type LookupEntityInput struct {
	EntityValue string `json:"entity_value" jsonschema:"Indicator to look up: IP, domain, hash, email, hostname or user"`
	HoursBack   int    `json:"hours_back,omitempty" jsonschema:"Look-back window in hours (default 24, max 8760)"`
	ProjectID   string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID  string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region      string `json:"region,omitempty" jsonschema:"Chronicle region; defaults to the server instance"`
}

// EntityResult is returned by LookupEntity. Results served from the entity
// cache share their slices with it and must not be modified.
type EntityResult struct {
	EntityValue string           `json:"entity_value"`
	EntityType  string           `json:"entity_type"`
	Entities    []map[string]any `json:"entities"`
	AlertCounts []map[string]any `json:"alert_counts"`
	FirstSeen   string           `json:"first_seen,omitempty"`
	LastSeen    string           `json:"last_seen,omitempty"`
}

// LookupEntity summarises what the instance knows about an indicator.
func (t *Toolkit) LookupEntity(ctx context.Context, in LookupEntityInput) (EntityResult, error) {
	value := strings.TrimSpace(in.EntityValue)
	if value == "" {
		return EntityResult{}, fmt.Errorf("entity_value is required")
	}
	hours, err := hoursBack(in.HoursBack)
	if err != nil {
		return EntityResult{}, err
	}
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return EntityResult{}, err
	}
	key := fmt.Sprintf("%s|%d|%s", cli.Instance().Key(), hours, value)
	out, hit, err := t.entities.Load(ctx, key, func(ctx context.Context) (EntityResult, error) {
		sum, err := cli.SummarizeEntity(ctx, chronicle.EntityRequest{
			Value:        value,
			Window:       chronicle.LastHours(cli.Now(), hours),
			ReturnAlerts: true,
		})
		if err != nil {
			return EntityResult{}, fmt.Errorf("lookup entity: %w", err)
		}
		return entityResult(sum), nil
	})
	if err != nil {
		return EntityResult{}, err
	}
	if hit {
		t.logger.Debug("toolkit.entity.cache_hit", "entity_type", out.EntityType)
	}
	t.archiveResult(ctx, toolLookupEntity, cli.Instance(), in, out)
	return out, nil
}

func entityResult(sum *chronicle.EntitySummary) EntityResult {
	out := EntityResult{
		EntityValue: sum.Value,
		EntityType:  sum.EntityType,
		Entities:    objectList(sum.Raw["entities"]),
		AlertCounts: objectList(sum.Raw["alertCounts"]),
	}
	var first, last time.Time
	for _, ent := range out.Entities {
		if ts, ok := parseTime(nested(ent, "metric", "firstSeen")); ok && (first.IsZero() || ts.Before(first)) {
			first = ts
		}
		if ts, ok := parseTime(nested(ent, "metric", "lastSeen")); ok && ts.After(last) {
			last = ts
		}
	}
	if !first.IsZero() {
		out.FirstSeen = first.UTC().Format(time.RFC3339)
	}
	if !last.IsZero() {
		out.LastSeen = last.UTC().Format(time.RFC3339)
	}
	return out
}

// ListRulesInput parameterises ListSecurityRules.
type ListRulesInput struct {
	ProjectID  string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region     string `json:"region,omitempty" jsonschema:"Chronicle region; defaults to the server instance"`
}

// RulesResult is returned by ListSecurityRules. The rule maps are shared with
// the rules cache and must not be modified.
type RulesResult struct {
	TotalRules int              `json:"total_rules"`
	Rules      []map[string]any `json:"rules"`
}

// ListSecurityRules returns every detection rule.
func (t *Toolkit) ListSecurityRules(ctx context.Context, in ListRulesInput) (RulesResult, error) {
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return RulesResult{}, err
	}
	rules, err := t.loadRules(ctx, cli)
	if err != nil {
		return RulesResult{}, err
	}
	out := RulesResult{TotalRules: len(rules), Rules: slices.Clone(rules)}
	t.archiveResult(ctx, toolListRules, cli.Instance(), in, out)
	return out, nil
}

// SearchRulesInput parameterises SearchSecurityRules.
type SearchRulesInput struct {
	Pattern    string `json:"pattern" jsonschema:"RE2 regular expression matched against rule names and rule text"`
	ProjectID  string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region     string `json:"region,omitempty" jsonschema:"Chronicle region; defaults to the server instance"`
}

// SearchRulesResult is returned by SearchSecurityRules.
type SearchRulesResult struct {
	Pattern      string           `json:"pattern"`
	RulesScanned int              `json:"rules_scanned"`
	TotalMatches int              `json:"total_matches"`
	Rules        []map[string]any `json:"rules"`
}

// SearchSecurityRules filters the rule catalogue with a regular expression.
func (t *Toolkit) SearchSecurityRules(ctx context.Context, in SearchRulesInput) (SearchRulesResult, error) {
	pattern := strings.TrimSpace(in.Pattern)
	if pattern == "" {
		return SearchRulesResult{}, fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return SearchRulesResult{}, fmt.Errorf("invalid pattern: %w", err)
	}
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return SearchRulesResult{}, err
	}
	rules, err := t.loadRules(ctx, cli)
	if err != nil {
		return SearchRulesResult{}, err
	}
	out := SearchRulesResult{Pattern: pattern, RulesScanned: len(rules), Rules: []map[string]any{}}
	for _, rule := range rules {
		if ruleMatches(re, rule) {
			out.Rules = append(out.Rules, rule)
		}
	}
	out.TotalMatches = len(out.Rules)
	t.archiveResult(ctx, toolSearchRules, cli.Instance(), in, out)
	return out, nil
}

func ruleMatches(re *regexp.Regexp, rule map[string]any) bool {
	for _, field := range []string{"displayName", "text", "name", "ruleId"} {
		if s, ok := rule[field].(string); ok && re.MatchString(s) {
			return true
		}
	}
	return false
}

func (t *Toolkit) loadRules(ctx context.Context, cli *chronicle.Client) ([]map[string]any, error) {
	rules, _, err := t.rules.Load(ctx, cli.Instance().Key(), func(ctx context.Context) ([]map[string]any, error) {
		rules, err := cli.ListRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("list security rules: %w", err)
		}
		return rules, nil
	})
	return rules, err
}

// IoCMatchesInput parameterises GetIoCMatches.
type IoCMatchesInput struct {
	HoursBack  int    `json:"hours_back,omitempty" jsonschema:"Look-back window in hours (default 24, max 8760)"`
	MaxMatches int    `json:"max_matches,omitempty" jsonschema:"Maximum matches to return (default 20)"`
	ProjectID  string `json:"project_id,omitempty" jsonschema:"Google Cloud project id; defaults to the server instance"`
	CustomerID string `json:"customer_id,omitempty" jsonschema:"Chronicle customer id; defaults to the server instance"`
	Region     string `json:"region,omitempty" jsonschema:"Chronicle region; defaults to the server instance"`
}

// IoCResult is returned by GetIoCMatches.
type IoCResult struct {
	TotalMatches      int              `json:"total_matches"`
	Matches           []map[string]any `json:"matches"`
	MoreDataAvailable bool             `json:"more_data_available"`
}

// GetIoCMatches lists threat-intel indicators seen in the instance.
func (t *Toolkit) GetIoCMatches(ctx context.Context, in IoCMatchesInput) (IoCResult, error) {
	hours, err := hoursBack(in.HoursBack)
	if err != nil {
		return IoCResult{}, err
	}
	limit, err := positiveOr("max_matches", in.MaxMatches, DefaultMaxMatches)
	if err != nil {
		return IoCResult{}, err
	}
	cli, err := t.clientFor(in.ProjectID, in.CustomerID, in.Region)
	if err != nil {
		return IoCResult{}, err
	}
	res, err := cli.ListIoCMatches(ctx, chronicle.LastHours(cli.Now(), hours), limit)
	if err != nil {
		return IoCResult{}, fmt.Errorf("get ioc matches: %w", err)
	}
	out := IoCResult{Matches: res.Matches, MoreDataAvailable: res.MoreDataAvailable}
	if len(out.Matches) > limit {
		out.Matches = out.Matches[:limit]
		out.MoreDataAvailable = true
	}
	out.TotalMatches = len(out.Matches)
	t.archiveResult(ctx, toolIoCMatches, cli.Instance(), in, out)
	return out, nil
}

func (t *Toolkit) clientFor(projectID, customerID, region string) (*chronicle.Client, error) {
	if t == nil || t.client == nil {
		return nil, fmt.Errorf("chronicle client not configured")
	}
	return t.client.WithInstance(chronicle.Instance{
		ProjectID:  strings.TrimSpace(projectID),
		CustomerID: strings.TrimSpace(customerID),
		Region:     strings.TrimSpace(region),
	})
}

func (t *Toolkit) archiveResult(ctx context.Context, tool string, inst chronicle.Instance, args, result any) {
	if t.archive == nil {
		return
	}
	key, err := t.archive.Put(ctx, evidence.Record{
		Tool:          tool,
		Instance:      evidence.Instance{ProjectID: inst.ProjectID, CustomerID: inst.CustomerID, Region: inst.Region},
		CorrelationID: correlation.ID(ctx),
		Arguments:     args,
		Result:        result,
	})
	if err != nil {
		t.logger.Warn("toolkit.evidence.archive_failed", "tool", tool, "error", err)
		return
	}
	t.logger.Debug("toolkit.evidence.archived", "tool", tool, "key", key)
}

func hoursBack(v int) (int, error) {
	if v == 0 {
		return DefaultHoursBack, nil
	}
	if v < 1 || v > maxHoursBack {
		return 0, fmt.Errorf("hours_back must be between 1 and %d", maxHoursBack)
	}
	return v, nil
}

func positiveOr(name string, v, def int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	if v > maxResults {
		return 0, fmt.Errorf("%s must not exceed %d", name, maxResults)
	}
	return v, nil
}

func nested(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

func objectList(v any) []map[string]any {
	out := []map[string]any{}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func parseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
