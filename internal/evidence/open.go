package evidence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnsupportedScheme is returned for sink URLs with an unknown scheme.
var ErrUnsupportedScheme = errors.New("evidence: unsupported sink scheme")

// Target is a parsed sink URL.
type Target struct {
	Scheme string
	Prefix string
	Disk   string
	S3     S3Config
	AWS    AWSConfig
	Azure  AzureConfig
}

// ParseURL decodes a sink URL. Supported forms:
//
//	mem://
//	disk:///var/lib/secops-mcp/evidence
//	s3://host[:port]/bucket[/prefix]?insecure=1&path-style=1
//	aws://bucket[/prefix]?region=eu-west-1
//	azure://account/container[/prefix]
//
// Secrets come from getenv (nil means os.Getenv), never from the URL path.
func ParseURL(raw string, getenv func(string) string) (Target, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, fmt.Errorf("evidence: parse sink URL: %w", err)
	}
	query := u.Query()
	t := Target{Scheme: strings.ToLower(u.Scheme)}
	switch t.Scheme {
	case "mem", "memory":
		t.Scheme = "mem"
		return t, nil
	case "disk":
		p := strings.TrimSpace(u.Path)
		if host := strings.TrimSpace(u.Host); host != "" {
			p = "/" + host + "/" + strings.TrimPrefix(p, "/")
		}
		if p == "" || p == "/" {
			return Target{}, fmt.Errorf("evidence: disk sink path required (e.g. disk:///var/lib/secops-mcp/evidence)")
		}
		t.Disk = filepath.Clean(p)
		return t, nil
	case "s3":
		endpoint := strings.TrimSpace(u.Host)
		if endpoint == "" {
			return Target{}, fmt.Errorf("evidence: s3 sink missing host (expected s3://host[:port]/bucket[/prefix])")
		}
		bucket, prefix := splitFirst(u.Path)
		if bucket == "" {
			return Target{}, fmt.Errorf("evidence: s3 sink missing bucket (expected s3://host[:port]/bucket[/prefix])")
		}
		t.Prefix = prefix
		t.S3 = S3Config{
			Endpoint:       endpoint,
			Region:         query.Get("region"),
			Bucket:         bucket,
			AccessKey:      strings.TrimSpace(getenv("SECOPS_EVIDENCE_S3_ACCESS_KEY_ID")),
			SecretKey:      getenv("SECOPS_EVIDENCE_S3_SECRET_ACCESS_KEY"),
			SessionToken:   getenv("SECOPS_EVIDENCE_S3_SESSION_TOKEN"),
			Insecure:       queryBool(query, "insecure"),
			ForcePathStyle: queryBool(query, "path-style"),
		}
		if (t.S3.AccessKey == "") != (t.S3.SecretKey == "") {
			return Target{}, fmt.Errorf("evidence: s3 credentials incomplete (need access key and secret key)")
		}
		return t, nil
	case "aws":
		bucket := strings.TrimSpace(u.Host)
		if bucket == "" {
			return Target{}, fmt.Errorf("evidence: aws sink missing bucket (expected aws://bucket[/prefix])")
		}
		region := strings.TrimSpace(query.Get("region"))
		if region == "" {
			region = firstNonEmpty(getenv("AWS_REGION"), getenv("AWS_DEFAULT_REGION"))
		}
		if region == "" {
			return Target{}, fmt.Errorf("evidence: aws sink requires region (aws://bucket?region=... or AWS_REGION)")
		}
		t.Prefix = strings.Trim(u.Path, "/")
		t.AWS = AWSConfig{
			Bucket:   bucket,
			Region:   region,
			Endpoint: query.Get("endpoint"),
			Insecure: queryBool(query, "insecure"),
		}
		return t, nil
	case "azure":
		account := firstNonEmpty(u.Host, getenv("AZURE_STORAGE_ACCOUNT"))
		if account == "" {
			return Target{}, fmt.Errorf("evidence: azure account required (azure://account/container or AZURE_STORAGE_ACCOUNT)")
		}
		container, prefix := splitFirst(u.Path)
		if container == "" {
			return Target{}, fmt.Errorf("evidence: azure sink missing container (expected azure://account/container[/prefix])")
		}
		t.Prefix = prefix
		t.Azure = AzureConfig{
			Account:    account,
			AccountKey: firstNonEmpty(getenv("AZURE_STORAGE_ACCOUNT_KEY"), getenv("AZURE_STORAGE_KEY")),
			SASToken:   firstNonEmpty(query.Get("sas"), getenv("AZURE_STORAGE_SAS_TOKEN")),
			Endpoint:   query.Get("endpoint"),
			Container:  container,
		}
		return t, nil
	default:
		return Target{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Open parses raw and connects the matching sink. A prefix in raw overrides
// any WithPrefix option. An empty raw disables archiving and returns a nil
// *Archive.
func Open(ctx context.Context, raw string, getenv func(string) string, opts ...Option) (*Archive, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	target, err := ParseURL(raw, getenv)
	if err != nil {
		return nil, err
	}
	var sink Sink
	switch target.Scheme {
	case "mem":
		sink = NewMemorySink()
	case "disk":
		sink, err = NewDiskSink(target.Disk)
	case "s3":
		sink, err = NewS3Sink(ctx, target.S3)
	case "aws":
		sink, err = NewAWSSink(ctx, target.AWS)
	case "azure":
		sink, err = NewAzureSink(ctx, target.Azure)
	}
	if err != nil {
		return nil, err
	}
	if target.Prefix != "" {
		opts = append(opts, WithPrefix(target.Prefix))
	}
	return NewArchive(sink, opts...), nil
}

func splitFirst(p string) (string, string) {
	p = strings.Trim(p, "/")
	head, tail, _ := strings.Cut(p, "/")
	return strings.TrimSpace(head), strings.Trim(tail, "/")
}

func queryBool(q url.Values, key string) bool {
	v := q.Get(key)
	if v == "" {
		return false
	}
	ok, err := strconv.ParseBool(v)
	return err == nil && ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
