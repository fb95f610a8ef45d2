// Package otel binds portalAuth engine counters to OpenTelemetry instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter, one
// Int64ObservableGauge per login latency bucket, and a single callback that
// reads every engine's MetricsSnapshot on each collection. Observations carry
// a "surface" attribute so member and admin engines share instruments.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
