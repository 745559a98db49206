package chronicle

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Environment variables read by InstanceFromEnv.
const (
	EnvProjectID  = "CHRONICLE_PROJECT_ID"
	EnvCustomerID = "CHRONICLE_CUSTOMER_ID"
	EnvRegion     = "CHRONICLE_REGION"

	// EnvBaseURL overrides the regional endpoint, e.g. for a proxy.
	EnvBaseURL = "CHRONICLE_BASE_URL"
)

// Placeholder values used when the environment does not name an instance.
const (
	DefaultProjectID  = "your-google-cloud-project-id"
	DefaultCustomerID = "your-chronicle-customer-id"
	DefaultRegion     = "us"
)

// ErrMissingInstance is returned when a required instance field is empty.
var ErrMissingInstance = errors.New("chronicle: instance project_id, customer_id and region are required")

// Instance identifies a SecOps tenant.
type Instance struct {
	ProjectID  string `json:"project_id" yaml:"project_id"`
	CustomerID string `json:"customer_id" yaml:"customer_id"`
	Region     string `json:"region" yaml:"region"`
}

// InstanceFromEnv reads the CHRONICLE_* variables through lookup, falling back
// to the placeholder defaults for unset or empty values.
func InstanceFromEnv(lookup func(string) (string, bool)) Instance {
	get := func(key, def string) string {
		if lookup == nil {
			return def
		}
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	return Instance{
		ProjectID:  get(EnvProjectID, DefaultProjectID),
		CustomerID: get(EnvCustomerID, DefaultCustomerID),
		Region:     get(EnvRegion, DefaultRegion),
	}
}

// WithDefaults fills empty fields of i from def.
func (i Instance) WithDefaults(def Instance) Instance {
	if strings.TrimSpace(i.ProjectID) == "" {
		i.ProjectID = def.ProjectID
	}
	if strings.TrimSpace(i.CustomerID) == "" {
		i.CustomerID = def.CustomerID
	}
	if strings.TrimSpace(i.Region) == "" {
		i.Region = def.Region
	}
	return i
}

// Validate reports ErrMissingInstance when any field is blank.
func (i Instance) Validate() error {
	if strings.TrimSpace(i.ProjectID) == "" || strings.TrimSpace(i.CustomerID) == "" || strings.TrimSpace(i.Region) == "" {
		return ErrMissingInstance
	}
	return nil
}

// ResourceName is the instance path below the API version.
func (i Instance) ResourceName() string {
	return fmt.Sprintf("projects/%s/locations/%s/instances/%s",
		url.PathEscape(i.ProjectID), url.PathEscape(i.Region), url.PathEscape(i.CustomerID))
}

// Endpoint is the regional API host for the instance.
func (i Instance) Endpoint() string {
	return fmt.Sprintf("https://%s-chronicle.googleapis.com", strings.ToLower(strings.TrimSpace(i.Region)))
}

// Key is a stable cache key for the instance.
func (i Instance) Key() string {
	return i.ProjectID + "/" + i.Region + "/" + i.CustomerID
}
