package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRequestID_KeepsParentTrace(t *testing.T) {
	ctx := WithTrace(context.Background(), &TraceContext{TraceID: "drain-1", RequestID: "http-1"})

	sub := GetTrace(WithRequestID(ctx, "offline-9"))
	require.NotNil(t, sub)
	assert.Equal(t, "drain-1", sub.TraceID)
	assert.Equal(t, "offline-9", sub.RequestID)
	assert.Equal(t, "http-1", GetTrace(ctx).RequestID, "parent untouched")

	orphan := GetTrace(WithRequestID(context.Background(), "offline-9"))
	assert.NotEmpty(t, orphan.TraceID)
}

func TestNewTrace_GeneratesMissingIDs(t *testing.T) {
	tr := NewTrace("")
	assert.NotEmpty(t, tr.RequestID)
	assert.NotEqual(t, tr.TraceID, tr.RequestID)
	assert.Nil(t, GetTrace(context.Background()))
}
