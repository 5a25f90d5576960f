// Package telemetry sets up OpenTelemetry tracing and metrics for tenantrag.
//
// Providers export over OTLP (gRPC by default, HTTP/protobuf optionally).
// When telemetry is disabled or a provider cannot be built, the global
// no-op providers are used and the service keeps running in a degraded
// state reported by Health.
package telemetry
