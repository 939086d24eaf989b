package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type tenantCtxKey struct{}
type requestCtxKey struct{}
type documentCtxKey struct{}
type loggerCtxKey struct{}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 5)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := TenantIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("tenant_id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := DocumentIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("document_id", id))
	}
	return fields
}

// WithTenantID tags log entries with the tenant. The value must already be
// validated; it is logged as-is.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantCtxKey{}, tenantID)
}

// TenantIDFromContext returns the tenant tag, or "".
func TenantIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(tenantCtxKey{}).(string)
	return s
}

// WithRequestID tags log entries with a request id.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id tag, or "".
func RequestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestCtxKey{}).(string)
	return s
}

// WithDocumentID tags log entries with the document being processed.
func WithDocumentID(ctx context.Context, documentID string) context.Context {
	return context.WithValue(ctx, documentCtxKey{}, documentID)
}

// DocumentIDFromContext returns the document tag, or "".
func DocumentIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(documentCtxKey{}).(string)
	return s
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves the logger stored by WithLogger, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
