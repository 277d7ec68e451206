// Package logging carries per-request log fields through a context.
package logging

import "context"

// Field names as they appear in log output.
const (
	TraceIDKey     = "trace_id"
	ProductIDKey   = "product_id"
	SubjectKey     = "subject"
	ServiceNameKey = "service_name"
)

type ctxKey string

// fieldOrder fixes the order fields are emitted in.
var fieldOrder = []string{TraceIDKey, ProductIDKey, SubjectKey, ServiceNameKey}

func with(ctx context.Context, key, value string) context.Context {
	return context.WithValue(ctx, ctxKey(key), value)
}

func get(ctx context.Context, key string) string {
	v, _ := ctx.Value(ctxKey(key)).(string)
	return v
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

// WithProductID tags ctx with a product-id URN so every *wCtx log line carries it.
func WithProductID(ctx context.Context, productID string) context.Context {
	return with(ctx, ProductIDKey, productID)
}

func WithSubject(ctx context.Context, subject string) context.Context {
	return with(ctx, SubjectKey, subject)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func GetTraceID(ctx context.Context) string     { return get(ctx, TraceIDKey) }
func GetProductID(ctx context.Context) string   { return get(ctx, ProductIDKey) }
func GetSubject(ctx context.Context) string     { return get(ctx, SubjectKey) }
func GetServiceName(ctx context.Context) string { return get(ctx, ServiceNameKey) }

// GetLogFields returns the non-empty fields of ctx as alternating keys and
// values.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(fieldOrder))
	for _, key := range fieldOrder {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}
	return fields
}
