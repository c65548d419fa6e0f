package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "ReserveBatch")
	defer span.End()

	require.NotNil(t, span)
	assert.Equal(t, span, trace.SpanFromContext(ctx))
}
