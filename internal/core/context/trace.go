// Package context carries per-request values: the trace ids stamped at the
// HTTP edge and the operator and terminal that issued a stock request.
package context

import (
	"context"

	"github.com/google/uuid"
)

// TraceContext correlates the log lines of one stock request. A drained
// offline request gets its own RequestID under the trace of the drain.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns the trace on ctx, or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// NewTrace starts a trace for work with no inbound HTTP request, such as a
// worker tick. An empty requestID is generated.
func NewTrace(requestID string) *TraceContext {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &TraceContext{TraceID: uuid.NewString(), RequestID: requestID}
}

// WithRequestID scopes ctx to one sub-request, keeping the parent trace id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	t := NewTrace(requestID)
	if parent := GetTrace(ctx); parent != nil {
		t.TraceID = parent.TraceID
	}
	return WithTrace(ctx, t)
}
