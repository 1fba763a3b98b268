// Package observability provides structured logging and Prometheus metrics
// for the auth gateway.
//
// Loggers are plain *zap.Logger values. Request-scoped fields (request id,
// user, firm, credential kind) are attached to the context by middleware and
// read back with WithRequest. Metrics are registered once on the default
// Prometheus registry and exposed through Handler.
package observability
