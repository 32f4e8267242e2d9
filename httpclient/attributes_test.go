package httpclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestWithAttributes(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, AttributesFromContext(ctx))

	ctx = WithAttributes(ctx, Attributes{"tenant": "acme", "region": "eu"})
	ctx = WithAttributes(ctx, Attributes{"region": "us", "priority": 1})

	got := AttributesFromContext(ctx)
	assert.Equal(t, Attributes{"tenant": "acme", "region": "us", "priority": 1}, got)

	// Callers get a copy.
	got["tenant"] = "changed"
	assert.Equal(t, "acme", AttributesFromContext(ctx)["tenant"])
}

func TestWithAttributes_ParentUnchanged(t *testing.T) {
	parent := WithAttributes(context.Background(), Attributes{"a": 1})
	_ = WithAttributes(parent, Attributes{"b": 2})

	assert.Equal(t, Attributes{"a": 1}, AttributesFromContext(parent))
}

func TestAttributes_SpanAttributes(t *testing.T) {
	attrs := Attributes{
		"tenant":   "acme",
		"priority": 2,
		"big":      int64(7),
		"vip":      true,
		"score":    0.5,
		"tags":     []string{"x"},
	}

	got := attrs.spanAttributes()
	require.Len(t, got, 6)
	assert.Equal(t, []attribute.KeyValue{
		attribute.Int64("request.attribute.big", 7),
		attribute.Int("request.attribute.priority", 2),
		attribute.Float64("request.attribute.score", 0.5),
		attribute.String("request.attribute.tags", "[x]"),
		attribute.String("request.attribute.tenant", "acme"),
		attribute.Bool("request.attribute.vip", true),
	}, got)

	assert.Nil(t, Attributes(nil).spanAttributes())
}

func TestInstanceFromContext(t *testing.T) {
	_, ok := InstanceFromContext(context.Background())
	assert.False(t, ok)

	inst, ok := InstanceFromContext(withInstance(context.Background(), instB))
	require.True(t, ok)
	assert.Equal(t, instB, inst)
}
