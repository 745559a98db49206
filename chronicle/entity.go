package chronicle

import (
	"context"
	"fmt"
	"net/mail"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
)

// Entity types reported by DetectEntityType.
const (
	EntityIP       = "IP_ADDRESS"
	EntityMD5      = "FILE_HASH_MD5"
	EntitySHA1     = "FILE_HASH_SHA1"
	EntitySHA256   = "FILE_HASH_SHA256"
	EntityEmail    = "EMAIL"
	EntityDomain   = "DOMAIN_NAME"
	EntityHostname = "HOSTNAME"
	EntityUser     = "USERNAME"
)

var (
	hexPattern    = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?\.)+[a-zA-Z]{2,63}$`)
)

// DetectEntityType classifies value and returns the UDM field used to look
// it up together with the entity type name.
func DetectEntityType(value string) (field, entityType string) {
	value = strings.TrimSpace(value)
	if _, err := netip.ParseAddr(value); err == nil {
		return "ip", EntityIP
	}
	if hexPattern.MatchString(value) {
		switch len(value) {
		case 32:
			return "hash", EntityMD5
		case 40:
			return "hash", EntitySHA1
		case 64:
			return "hash", EntitySHA256
		}
	}
	if strings.Contains(value, "@") {
		if addr, err := mail.ParseAddress(value); err == nil && addr.Address == value {
			return "email", EntityEmail
		}
	}
	if strings.Contains(value, `\`) {
		return "user", EntityUser
	}
	if domainPattern.MatchString(value) {
		return "domain", EntityDomain
	}
	if !strings.ContainsAny(value, " /") {
		return "hostname", EntityHostname
	}
	return "user", EntityUser
}

// EntityRequest parameterises SummarizeEntity.
type EntityRequest struct {
	Value        string
	Window       TimeRange
	ReturnAlerts bool
}

// EntitySummary is the decoded :summarizeEntity response plus the detected type.
type EntitySummary struct {
	Value      string
	EntityType string
	Field      string
	Raw        map[string]any
}

// SummarizeEntity looks up what the instance knows about an indicator.
func (c *Client) SummarizeEntity(ctx context.Context, req EntityRequest) (*EntitySummary, error) {
	value := strings.TrimSpace(req.Value)
	if value == "" {
		return nil, fmt.Errorf("chronicle: entity value is required")
	}
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	field, entityType := DetectEntityType(value)
	q := url.Values{}
	req.Window.encode(q, "timeRange")
	q.Set("fieldAndValue.field", field)
	q.Set("fieldAndValue.value", value)
	if req.ReturnAlerts {
		q.Set("returnAlerts", "true")
	}
	var raw map[string]any
	if err := c.getJSON(ctx, "summarize_entity", ":summarizeEntity", q, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return &EntitySummary{Value: value, EntityType: entityType, Field: field, Raw: raw}, nil
}
