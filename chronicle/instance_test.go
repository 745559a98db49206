package chronicle

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestInstanceFromEnvDefaults(t *testing.T) {
	t.Parallel()

	env := map[string]string{EnvRegion: "  "}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	got := InstanceFromEnv(lookup)
	want := Instance{ProjectID: DefaultProjectID, CustomerID: DefaultCustomerID, Region: DefaultRegion}
	if got != want {
		t.Fatalf("InstanceFromEnv = %+v, want %+v", got, want)
	}
	if InstanceFromEnv(nil) != want {
		t.Fatal("nil lookup should yield defaults")
	}
}

func TestInstanceFromEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{EnvProjectID: "p1", EnvCustomerID: "c1", EnvRegion: "europe-west2"}
	got := InstanceFromEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	if got.ProjectID != "p1" || got.CustomerID != "c1" || got.Region != "europe-west2" {
		t.Fatalf("unexpected instance %+v", got)
	}
	if got.Endpoint() != "https://europe-west2-chronicle.googleapis.com" {
		t.Fatalf("unexpected endpoint %s", got.Endpoint())
	}
	if got.ResourceName() != "projects/p1/locations/europe-west2/instances/c1" {
		t.Fatalf("unexpected resource %s", got.ResourceName())
	}
}

func TestDetectEntityType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		value string
		field string
		kind  string
	}{
		{"8.8.8.8", "ip", EntityIP},
		{"2001:4860:4860::8888", "ip", EntityIP},
		{"d41d8cd98f00b204e9800998ecf8427e", "hash", EntityMD5},
		{"da39a3ee5e6b4b0d3255bfef95601890afd80709", "hash", EntitySHA1},
		{"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", "hash", EntitySHA256},
		{"alice@example.com", "email", EntityEmail},
		{"evil.example.org", "domain", EntityDomain},
		{`CORP\alice`, "user", EntityUser},
		{"WIN-SRV01", "hostname", EntityHostname},
		{"john smith", "user", EntityUser},
	}
	for _, tc := range cases {
		field, kind := DetectEntityType(tc.value)
		if field != tc.field || kind != tc.kind {
			t.Fatalf("DetectEntityType(%q) = %s,%s want %s,%s", tc.value, field, kind, tc.field, tc.kind)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := parseRetryAfter("1.5", now); got != 1500*time.Millisecond {
		t.Fatalf("seconds form = %v", got)
	}
	if got := parseRetryAfter(now.Add(3*time.Second).Format(http.TimeFormat), now); got != 3*time.Second {
		t.Fatalf("date form = %v", got)
	}
	if got := parseRetryAfter("soon", now); got != 0 {
		t.Fatalf("garbage = %v", got)
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{&APIError{Status: 429}, true},
		{&APIError{Status: 502}, true},
		{&APIError{Status: 400}, false},
		{&TransportError{Op: "x", Err: http.ErrHandlerTimeout}, true},
		{&TransportError{Op: "x", Err: &url.Error{Op: "Get", URL: "https://x", Err: context.DeadlineExceeded}}, true},
		{context.DeadlineExceeded, false},
		{context.Canceled, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("IsRetryable(%v) = %v want %v", tc.err, got, tc.want)
		}
	}
}
