// Package evidence archives successful tool results to an object store so an
// analyst can replay what the assistant saw. Archiving is best effort: the
// caller logs failures and carries on.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/xid"
	"pkt.systems/pslog"

	"github.com/emeryray2002/mcp-secops-v3/internal/clock"
	"github.com/emeryray2002/mcp-secops-v3/internal/loggingutil"
)

// ContentType is set on every archived object.
const ContentType = "application/json"

// Sink persists opaque payloads under a key.
type Sink interface {
	Put(ctx context.Context, key string, payload []byte) error
	Close() error
}

// Instance identifies the Chronicle tenant a record was fetched from.
type Instance struct {
	ProjectID  string `json:"project_id"`
	CustomerID string `json:"customer_id"`
	Region     string `json:"region"`
}

// Record is one archived tool invocation.
type Record struct {
	ID            string    `json:"id"`
	Tool          string    `json:"tool"`
	Instance      Instance  `json:"instance"`
	RequestedAt   time.Time `json:"requested_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Arguments     any       `json:"arguments,omitempty"`
	Result        any       `json:"result"`
}

// Archive stamps and serialises records before handing them to a Sink. A nil
// *Archive discards everything.
type Archive struct {
	sink   Sink
	prefix string
	clock  clock.Clock
	logger pslog.Logger
}

// Option customises an Archive.
type Option func(*Archive)

// WithClock overrides the time source used for RequestedAt and key layout.
func WithClock(c clock.Clock) Option {
	return func(a *Archive) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithLogger sets the archive logger.
func WithLogger(l pslog.Logger) Option {
	return func(a *Archive) {
		a.logger = loggingutil.WithSubsystem(l, "evidence.archive")
	}
}

// WithPrefix nests all keys under prefix.
func WithPrefix(prefix string) Option {
	return func(a *Archive) {
		a.prefix = strings.Trim(prefix, "/")
	}
}

// NewArchive wraps sink.
func NewArchive(sink Sink, opts ...Option) *Archive {
	a := &Archive{
		sink:   sink,
		clock:  clock.Real{},
		logger: loggingutil.NoopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Put fills in ID and RequestedAt when unset, writes the record, and returns
// the object key.
func (a *Archive) Put(ctx context.Context, rec Record) (string, error) {
	if a == nil || a.sink == nil {
		return "", nil
	}
	if strings.TrimSpace(rec.Tool) == "" {
		return "", errors.New("evidence: tool is required")
	}
	if rec.ID == "" {
		rec.ID = xid.New().String()
	}
	if rec.RequestedAt.IsZero() {
		rec.RequestedAt = a.clock.Now()
	}
	rec.RequestedAt = rec.RequestedAt.UTC()
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("evidence: encode record: %w", err)
	}
	key := a.key(rec)
	if err := a.sink.Put(ctx, key, payload); err != nil {
		return "", fmt.Errorf("evidence: put %s: %w", key, err)
	}
	a.logger.Debug("evidence.stored", "key", key, "tool", rec.Tool, "bytes", len(payload))
	return key, nil
}

// Close releases the sink.
func (a *Archive) Close() error {
	if a == nil || a.sink == nil {
		return nil
	}
	return a.sink.Close()
}

func (a *Archive) key(rec Record) string {
	ts := rec.RequestedAt
	return path.Join(a.prefix,
		ts.Format("2006"), ts.Format("01"), ts.Format("02"),
		sanitizeSegment(rec.Tool), rec.ID+".json")
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
