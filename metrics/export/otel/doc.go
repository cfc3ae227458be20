// Package otel publishes formguard metrics through an OpenTelemetry Meter.
//
// Counters are grouped by attribute rather than exported one instrument each:
// formguard.submissions{outcome}, formguard.denials{reason} and
// formguard.degradations{degradation}. Latency histograms become a cumulative
// gauge keyed by "le" plus a sample count. A single callback reads
// [formguard.Guard.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate guard state.
package otel
