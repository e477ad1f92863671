package tracing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// SenderIDKey is the context key for the conversation sender
	SenderIDKey ContextKey = "sender_id"
	// ActionNameKey is the context key for the action being dispatched
	ActionNameKey ContextKey = "action_name"
)

// RequestIDHeader carries the request id in and out of the server.
const RequestIDHeader = "X-Request-Id"

// TraceContext holds tracing information
type TraceContext struct {
	TraceID    string
	RequestID  string
	SenderID   string
	ActionName string
}

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSenderID adds the conversation sender to the context
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, SenderIDKey, senderID)
}

// WithActionName adds the dispatched action name to the context
func WithActionName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ActionNameKey, name)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSenderID retrieves the sender ID from the context
func GetSenderID(ctx context.Context) string {
	if senderID, ok := ctx.Value(SenderIDKey).(string); ok {
		return senderID
	}
	return ""
}

// GetActionName retrieves the action name from the context
func GetActionName(ctx context.Context) string {
	if name, ok := ctx.Value(ActionNameKey).(string); ok {
		return name
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		RequestID:  GetRequestID(ctx),
		SenderID:   GetSenderID(ctx),
		ActionName: GetActionName(ctx),
	}
}

// RequestID middleware reuses an inbound X-Request-Id or generates a uuid,
// stores it in the request context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
	})
}
