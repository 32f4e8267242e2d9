package httpclient

import (
	"context"
	"fmt"
	"maps"
	"sort"

	"github.com/kroma-labs/sentinel-hedge/discovery"
	"go.opentelemetry.io/otel/attribute"
)

// Attributes are opaque key/value pairs that travel with a logical request.
// They are never sent over the wire; the dispatcher copies them onto its
// span and winner log record.
type Attributes map[string]any

type attributesKey struct{}

// WithAttributes returns a context carrying attrs merged over any attributes
// already present in ctx.
func WithAttributes(ctx context.Context, attrs Attributes) context.Context {
	merged := make(Attributes, len(attrs))
	if existing, ok := ctx.Value(attributesKey{}).(Attributes); ok {
		maps.Copy(merged, existing)
	}
	maps.Copy(merged, attrs)
	return context.WithValue(ctx, attributesKey{}, merged)
}

// AttributesFromContext returns a copy of the attributes carried by ctx.
func AttributesFromContext(ctx context.Context) Attributes {
	attrs, ok := ctx.Value(attributesKey{}).(Attributes)
	if !ok {
		return nil
	}
	return maps.Clone(attrs)
}

// spanAttributes converts attributes into sorted OpenTelemetry attributes
// under the "request.attribute." prefix.
func (a Attributes) spanAttributes() []attribute.KeyValue {
	if len(a) == 0 {
		return nil
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		key := "request.attribute." + k
		switch v := a[k].(type) {
		case string:
			out = append(out, attribute.String(key, v))
		case int:
			out = append(out, attribute.Int(key, v))
		case int64:
			out = append(out, attribute.Int64(key, v))
		case bool:
			out = append(out, attribute.Bool(key, v))
		case float64:
			out = append(out, attribute.Float64(key, v))
		default:
			out = append(out, attribute.String(key, fmt.Sprint(v)))
		}
	}
	return out
}

type instanceKey struct{}

// withInstance tags a candidate context with the instance it targets.
func withInstance(ctx context.Context, inst discovery.Instance) context.Context {
	return context.WithValue(ctx, instanceKey{}, inst)
}

// InstanceFromContext returns the instance a candidate request was sent to.
// It is set on every request the dispatcher hands to the candidate transport.
func InstanceFromContext(ctx context.Context) (discovery.Instance, bool) {
	inst, ok := ctx.Value(instanceKey{}).(discovery.Instance)
	return inst, ok
}
