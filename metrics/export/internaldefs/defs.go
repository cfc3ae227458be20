package internaldefs

import (
	"github.com/MrEthical07/formguard"
)

// Dimension maps one counter onto an attribute value of a grouped family.
type Dimension struct {
	ID    formguard.MetricID
	Value string
}

// DimensionDef groups counters that differ only by one label, such as verdict
// outcome or denial reason. Each exporter publishes it as a single family.
type DimensionDef struct {
	// Name is the Prometheus family name; OTelName the dotted instrument name.
	Name     string
	OTelName string
	Help     string
	Key      string
	Values   []Dimension
}

// CounterDef defines a public type used by formguard exporters.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID       formguard.MetricID
	Name     string
	OTelName string
	Help     string
}

// HistogramDef defines a public type used by formguard exporters.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID       formguard.MetricID
	Name     string
	OTelName string
	Help     string
}

// DimensionDefs covers every counter except those in StandaloneCounters.
var DimensionDefs = []DimensionDef{
	{
		Name:     "formguard_submissions_total",
		OTelName: "formguard.submissions",
		Help:     "Verified submissions by outcome.",
		Key:      "outcome",
		Values: []Dimension{
			{ID: formguard.MetricSubmissionAllowed, Value: formguard.OutcomeAllowedStrict.String()},
			{ID: formguard.MetricSubmissionDegraded, Value: formguard.OutcomeAllowedDegraded.String()},
			{ID: formguard.MetricSubmissionDenied, Value: formguard.OutcomeDenied.String()},
		},
	},
	{
		Name:     "formguard_denials_total",
		OTelName: "formguard.denials",
		Help:     "Denied submissions by reason.",
		Key:      "reason",
		Values: []Dimension{
			{ID: formguard.MetricTokenInvalid, Value: string(formguard.ReasonTokenInvalid)},
			{ID: formguard.MetricRateLimitExceeded, Value: string(formguard.ReasonRateLimitExceeded)},
			{ID: formguard.MetricBodyUnparsable, Value: string(formguard.ReasonBodyUnparsable)},
			{ID: formguard.MetricBotTokenMissing, Value: string(formguard.ReasonBotTokenMissing)},
			{ID: formguard.MetricBotActionMismatch, Value: string(formguard.ReasonBotActionMismatch)},
			{ID: formguard.MetricBotScoreTooLow, Value: string(formguard.ReasonBotScoreTooLow)},
		},
	},
	{
		Name:     "formguard_degradations_total",
		OTelName: "formguard.degradations",
		Help:     "Layers that failed open, by degradation.",
		Key:      "degradation",
		Values: []Dimension{
			{ID: formguard.MetricRateLimitUnavailable, Value: string(formguard.DegradedRateLimitUnavailable)},
			{ID: formguard.MetricBotVerificationUnavailable, Value: string(formguard.DegradedBotVerificationUnavailable)},
		},
	},
}

// StandaloneCounters are counters with no natural grouping label.
var StandaloneCounters = []CounterDef{
	{ID: formguard.MetricBotVerified, Name: "formguard_bot_verified_total", OTelName: "formguard.bot.verified", Help: "Bot checks answered by the provider."},
	{ID: formguard.MetricTokenIssued, Name: "formguard_tokens_issued_total", OTelName: "formguard.tokens.issued", Help: "Anti-forgery tokens issued."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: formguard.MetricVerifyLatency, Name: "formguard_verify_latency_seconds", OTelName: "formguard.verify.latency", Help: "Verification pipeline latency histogram."},
	{ID: formguard.MetricBotVerifyLatency, Name: "formguard_bot_verify_latency_seconds", OTelName: "formguard.bot.latency", Help: "Bot-score provider round trip latency histogram."},
}

// AuditDropped names the dispatcher drop counter, which is read outside the snapshot.
var AuditDropped = CounterDef{
	Name:     "formguard_audit_dropped_total",
	OTelName: "formguard.audit.dropped",
	Help:     "Audit events dropped on a full dispatcher buffer.",
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed eight-bucket array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into the running totals Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
