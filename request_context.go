package ap2

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderAgentID identifies the calling agent.
const HeaderAgentID = "AP2-Agent-Id"

type RequestContext struct {
	// API Key used to make requests
	//
	// Example: Bearer api_key_123
	Authorization string
	// Identity of the calling agent
	//
	// Example: travel_shopper_agent
	AgentID string
	// Information about the client making this request
	UserAgent string
	// Unique key for each request for tracing purposes
	//
	// Example: request_id_123
	RequestID string
	// Base64url encoded signature of the canonical request body
	Signature string
	// Formatted as an RFC 3339 string.
	//
	// Example: 2025-09-25T10:30:00Z
	Timestamp string
	// AP2 protocol version spoken by the caller
	//
	// Example: v0.1
	Version string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		Authorization: strings.TrimSpace(r.Header.Get("Authorization")),
		AgentID:       strings.TrimSpace(r.Header.Get(HeaderAgentID)),
		UserAgent:     strings.TrimSpace(r.Header.Get("User-Agent")),
		RequestID:     strings.TrimSpace(r.Header.Get("Request-Id")),
		Signature:     strings.TrimSpace(r.Header.Get("Signature")),
		Timestamp:     strings.TrimSpace(r.Header.Get("Timestamp")),
		Version:       strings.TrimSpace(r.Header.Get(HeaderVersion)),
	}
}

// logAttrs returns the request fields worth attaching to log lines.
func (rc *RequestContext) logAttrs() []any {
	if rc == nil {
		return nil
	}
	var attrs []any
	if rc.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", rc.RequestID))
	}
	if rc.AgentID != "" {
		attrs = append(attrs, slog.String("agent_id", rc.AgentID))
	}
	return attrs
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
