package chronicle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/internal/clock"
	"github.com/emeryray2002/mcp-secops-v3/internal/correlation"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
	"github.com/emeryray2002/mcp-secops-v3/internal/retry"
	"github.com/emeryray2002/mcp-secops-v3/internal/version"
)

const (
	apiVersion = "v1alpha"

	// DefaultMaxResponseBytes caps a single decoded response body.
	DefaultMaxResponseBytes int64 = 64 << 20
	// DefaultQPS is the client-side request rate.
	DefaultQPS = 5.0
	// DefaultBurst is the limiter burst size.
	DefaultBurst = 10
	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout = 60 * time.Second
)

// DefaultRetry is the backoff applied to transient failures.
var DefaultRetry = retry.Config{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    15 * time.Second,
	Multiplier:  2,
}

// Client talks to one Chronicle instance.
type Client struct {
	instance    Instance
	endpoint    string
	http        *http.Client
	limiter     *rate.Limiter
	retry       retry.Config
	clock       clock.Clock
	logger      pslog.Logger
	tracer      trace.Tracer
	metrics     *clientMetrics
	maxBody     int64
	tokenSource oauth2.TokenSource
	accessToken string
	baseRT      http.RoundTripper
	qps         float64
	burst       int
	timeout     time.Duration
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoint overrides the regional host, e.g. for tests or private
// endpoints. The instance path is still appended.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	}
}

// WithTokenSource injects OAuth2 credentials.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = ts
	}
}

// WithAccessToken uses a fixed bearer token instead of Application Default
// Credentials.
func WithAccessToken(token string) Option {
	return func(c *Client) {
		c.accessToken = strings.TrimSpace(token)
	}
}

// WithHTTPClient replaces the HTTP client entirely. Authentication and
// tracing are then the caller's responsibility.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		c.http = cli
	}
}

// WithBaseTransport sets the round tripper wrapped by tracing and auth.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.baseRT = rt
	}
}

// WithRateLimit sets the client-side request rate. qps <= 0 disables limiting.
func WithRateLimit(qps float64, burst int) Option {
	return func(c *Client) {
		c.qps = qps
		c.burst = burst
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg retry.Config) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithMaxResponseBytes caps response bodies.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithClock sets the time source used for windows and backoff.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client for inst. Without WithTokenSource, WithAccessToken, or
// WithHTTPClient it resolves Application Default Credentials.
func New(ctx context.Context, inst Instance, opts ...Option) (*Client, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		instance: inst,
		retry:    DefaultRetry,
		clock:    clock.Real{},
		maxBody:  DefaultMaxResponseBytes,
		qps:      DefaultQPS,
		burst:    DefaultBurst,
		timeout:  DefaultTimeout,
		tracer:   otel.Tracer("github.com/emeryray2002/mcp-secops-v3/chronicle"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = loggingutil.WithSubsystem(c.logger, "chronicle.client")
	c.metrics = newClientMetrics(c.logger)
	if c.qps > 0 {
		if c.burst <= 0 {
			c.burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(c.qps), c.burst)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if c.http == nil {
		ts, source, err := resolveTokenSource(ctx, c.tokenSource, c.accessToken)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("chronicle.auth.resolved", "source", source)
		base := c.baseRT
		if base == nil {
			base = defaultTransport()
		}
		c.http = &http.Client{
			Transport: &oauth2.Transport{
				Source: ts,
				Base:   otelhttp.NewTransport(base),
			},
		}
	}
	return c, nil
}

// Instance returns the tenant the client is bound to.
func (c *Client) Instance() Instance { return c.instance }

// WithInstance returns a client for inst that shares transport, credentials,
// and rate limiter with c. Empty fields of inst fall back to c's instance.
func (c *Client) WithInstance(inst Instance) (*Client, error) {
	inst = inst.WithDefaults(c.instance)
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if inst == c.instance {
		return c, nil
	}
	clone := *c
	clone.instance = inst
	return &clone, nil
}

// Now returns the client's current time.
func (c *Client) Now() time.Time { return c.clock.Now() }

func (c *Client) baseURL() string {
	endpoint := c.endpoint
	if endpoint == "" {
		endpoint = c.instance.Endpoint()
	}
	return endpoint + "/" + apiVersion + "/" + c.instance.ResourceName()
}

// getJSON issues a GET against the instance resource and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, op, suffix string, query url.Values, out any) error {
	body, err := c.getRaw(ctx, op, suffix, query)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("chronicle: decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, op, suffix string, query url.Values) ([]byte, error) {
	ctx = correlation.Ensure(ctx)
	ctx, span := c.tracer.Start(ctx, "secops.chronicle."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("secops.chronicle.operation", op),
		attribute.String("secops.chronicle.region", c.instance.Region),
		attribute.String("secops.correlation_id", correlation.ID(ctx)),
	)
	logger := c.logger.With("op", op, "cid", correlation.ID(ctx))

	target := c.baseURL() + suffix
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body []byte
	policy := retry.Policy{
		Config:    c.retry,
		Clock:     c.clock,
		Logger:    logger,
		Retryable: IsRetryable,
		Hint:      RetryAfter,
	}
	err := policy.Do(ctx, op, func(ctx context.Context) error {
		data, err := c.attempt(ctx, op, target, logger)
		if err != nil {
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chronicle_error")
		logger.Debug("chronicle.request.error", "error", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return body, nil
}

func (c *Client) attempt(ctx context.Context, op, target string, logger pslog.Logger) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("chronicle: build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	correlation.Apply(ctx, req)

	begin := c.clock.Now()
	logger.Debug("chronicle.request.begin", "url", redactQuery(target))
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observe(ctx, op, 0, c.clock.Now().Sub(begin))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	c.metrics.observe(ctx, op, resp.StatusCode, c.clock.Now().Sub(begin))
	if readErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{Op: op, Err: readErr}
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("chronicle: %s response exceeds %s limit", op, humanize.IBytes(uint64(c.maxBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp, data, c.clock.Now())
		logger.Debug("chronicle.request.status", "status", resp.StatusCode, "code", apiErr.Code)
		return nil, apiErr
	}
	logger.Debug("chronicle.request.done", "status", resp.StatusCode, "bytes", len(data), "elapsed", c.clock.Now().Sub(begin))
	return data, nil
}

func redactQuery(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Path
}

func defaultTransport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	clone := base.Clone()
	if clone.MaxIdleConnsPerHost == 0 {
		clone.MaxIdleConnsPerHost = 16
	}
	if clone.IdleConnTimeout == 0 {
		clone.IdleConnTimeout = 90 * time.Second
	}
	if clone.TLSHandshakeTimeout == 0 {
		clone.TLSHandshakeTimeout = 10 * time.Second
	}
	return clone
}

var errNoCredentials = errors.New("chronicle: no credentials (set CHRONICLE_ACCESS_TOKEN or configure Application Default Credentials)")
