// Package logging provides structured logging on top of Zap.
//
// Logger methods take a context and prepend its correlation fields
// (trace_id, span_id, tenant_id, request_id, document_id):
//
//	ctx = logging.WithTenantID(ctx, "acme")
//	logger.Info(ctx, "document ingested", zap.Int("fragments", n))
//
// Stdout output goes through a RedactingEncoder that masks credential keys
// and bearer tokens. OTEL output is bridged with otelzap when a log provider
// is supplied.
package logging
