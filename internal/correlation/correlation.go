// Package correlation carries a request identifier from an MCP tool call down
// to the Chronicle HTTP requests it fans out into.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Header is the outbound HTTP header carrying the identifier.
const Header = "X-Request-Id"

// MaxIDLength bounds accepted identifiers.
const MaxIDLength = 128

type contextKey struct{}

// With returns ctx carrying id. Invalid identifiers leave ctx unchanged.
func With(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	normalized, ok := Normalize(id)
	if !ok {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, normalized)
}

// Ensure returns ctx with an identifier, generating one when absent.
func Ensure(ctx context.Context) context.Context {
	if ID(ctx) != "" {
		return ctx
	}
	return With(ctx, Generate())
}

// ID returns the identifier stored on ctx, or "".
func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Apply copies the identifier on ctx onto req's headers.
func Apply(ctx context.Context, req *http.Request) {
	if req == nil {
		return
	}
	if id := ID(ctx); id != "" {
		req.Header.Set(Header, id)
	}
}

// Normalize trims id and rejects empty, overlong, or non-printable values.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxIDLength {
		return "", false
	}
	for _, r := range id {
		if r < 0x20 || r > 0x7e {
			return "", false
		}
	}
	return id, true
}

// Generate returns a fresh time-ordered identifier.
func Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
