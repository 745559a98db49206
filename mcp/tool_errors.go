package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/emeryray2002/mcp-secops-v3/chronicle"
)

type toolErrorEnvelope struct {
	ErrorCode         string `json:"error_code"`
	Detail            string `json:"detail,omitempty"`
	Retryable         bool   `json:"retryable"`
	HTTPStatus        int    `json:"http_status,omitempty"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

func withStructuredToolErrors[In, Out any](h mcpsdk.ToolHandlerFor[In, Out]) mcpsdk.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input In) (*mcpsdk.CallToolResult, Out, error) {
		res, out, err := h(ctx, req, input)
		if err == nil {
			return res, out, nil
		}
		var zero Out
		return nil, zero, toolError{Envelope: classifyToolError(err)}
	}
}

type toolError struct {
	Envelope toolErrorEnvelope
}

func (e toolError) Error() string {
	encoded, err := json.Marshal(map[string]any{"error": e.Envelope})
	if err != nil {
		return `{"error":{"error_code":"tool_error","detail":"failed to encode error envelope"}}`
	}
	return string(encoded)
}

func classifyToolError(err error) toolErrorEnvelope {
	env := toolErrorEnvelope{ErrorCode: "tool_error", Detail: strings.TrimSpace(err.Error())}
	var apiErr *chronicle.APIError
	if errors.As(err, &apiErr) {
		env.HTTPStatus = apiErr.Status
		if msg := strings.TrimSpace(apiErr.Message); msg != "" {
			env.Detail = msg
		}
		env.ErrorCode = strings.ToLower(strings.TrimSpace(apiErr.Code))
		if env.ErrorCode == "" {
			env.ErrorCode = "http_" + strconv.Itoa(apiErr.Status)
		}
		env.Retryable = apiErr.Temporary()
		if apiErr.RetryAfter > 0 {
			env.RetryAfterSeconds = int64(apiErr.RetryAfter.Seconds())
			env.Retryable = true
		}
		return env
	}
	if errors.Is(err, chronicle.ErrMissingInstance) {
		env.ErrorCode = "invalid_argument"
		return env
	}
	if errors.Is(err, context.DeadlineExceeded) {
		env.ErrorCode = "timeout"
		env.Retryable = true
		return env
	}
	var tErr *chronicle.TransportError
	if errors.As(err, &tErr) {
		env.ErrorCode = "unavailable"
		env.Retryable = true
		return env
	}
	lower := strings.ToLower(env.Detail)
	switch {
	case strings.Contains(lower, "required"),
		strings.Contains(lower, "must be"),
		strings.Contains(lower, "must not"),
		strings.Contains(lower, "invalid"),
		strings.Contains(lower, "exceed"),
		strings.Contains(lower, "decode "):
		env.ErrorCode = "invalid_argument"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline"):
		env.ErrorCode = "timeout"
		env.Retryable = true
	case strings.Contains(lower, "temporar"), strings.Contains(lower, "try again"):
		env.ErrorCode = "unavailable"
		env.Retryable = true
	}
	return env
}
