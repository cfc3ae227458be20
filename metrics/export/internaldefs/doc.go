// Package internaldefs holds the metric names, labels and bucket bounds shared by
// the Prometheus and OTel exporters.
//
// Verdict counters are grouped into labelled families (outcome, reason,
// degradation) so both exporters publish the same dimensions under their own
// naming conventions.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
