// Package prometheus renders formguard metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] accepts a [formguard.Guard] and exposes an [http.Handler].
// Verdict counters are labelled families: formguard_submissions_total{outcome},
// formguard_denials_total{reason} and formguard_degradations_total{degradation}.
// The histograms are formguard_verify_latency_seconds and
// formguard_bot_verify_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate guard state.
package prometheus
