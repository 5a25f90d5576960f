// Package logging wraps zap with context-aware methods for tenantrag.
//
// Every log call takes a context. Trace and span ids from OpenTelemetry,
// the tenant key attached by the HTTP layer, and the request id are pulled
// from the context and added as fields:
//
//	logger.Info(ctx, "ingest complete", zap.Int("chunks", n))
//
// Output goes to stdout as JSON or console text, optionally teed into an
// OpenTelemetry log provider through the otelzap bridge. Entries below
// error level are sampled. Sensitive keys and value patterns are redacted
// by the stdout encoder.
package logging
