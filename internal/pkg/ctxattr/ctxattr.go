// Package ctxattr stores logger attributes in a context.Context.
// Attributes are added to each log message logged with the context, see the log package.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attributesCtxKey = ctxKey("ctxattr")

// ContextWith returns a new context with the attributes merged into the existing ones.
// A later attribute with the same key overwrites the previous value.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	existing := Attributes(ctx).ToSlice()
	merged := attribute.NewSet(append(existing, attrs...)...)
	return context.WithValue(ctx, attributesCtxKey, &merged)
}

// Attributes returns all attributes from the context, the set is empty if there is none.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attributesCtxKey).(*attribute.Set); ok {
		return set
	}
	empty := attribute.NewSet()
	return &empty
}
