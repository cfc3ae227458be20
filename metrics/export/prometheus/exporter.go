package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/metrics/export/internaldefs"
)

type metricsSource interface {
	MetricsSnapshot() formguard.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders Guard metrics in Prometheus text exposition format.
type PrometheusExporter struct {
	source metricsSource
}

// NewPrometheusExporter creates a Prometheus exporter that reads from guard.
func NewPrometheusExporter(guard *formguard.Guard) *PrometheusExporter {
	return &PrometheusExporter{source: guard}
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value with
// MetricsSnapshot and AuditDropped methods.
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format. It returns ""
// when metrics are disabled and nothing was dropped.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096)

	for _, def := range internaldefs.DimensionDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		for _, v := range def.Values {
			writeSample(&b, def.Name, def.Key, v.Value, snapshot.Counters[v.ID])
		}
	}
	for _, def := range internaldefs.StandaloneCounters {
		writeHeader(&b, def.Name, def.Help, "counter")
		writeSample(&b, def.Name, "", "", snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(&b, def, cumulative)
	}

	writeHeader(&b, internaldefs.AuditDropped.Name, internaldefs.AuditDropped.Help, "counter")
	writeSample(&b, internaldefs.AuditDropped.Name, "", "", dropped)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteString("\n# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

// writeSample writes one line; an empty label writes an unlabelled sample.
func writeSample(b *strings.Builder, name, label, value string, n uint64) {
	b.WriteString(name)
	if label != "" {
		b.WriteByte('{')
		b.WriteString(label)
		b.WriteString(`="`)
		b.WriteString(value)
		b.WriteString(`"}`)
	}
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(n, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, def internaldefs.HistogramDef, cumulative [8]uint64) {
	writeHeader(b, def.Name, def.Help, "histogram")
	bucket := def.Name + "_bucket"
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, bucket, "le", le, cumulative[i])
	}
	writeSample(b, def.Name+"_count", "", "", cumulative[len(cumulative)-1])
	// Snapshots carry bucket counts only.
	writeSample(b, def.Name+"_sum", "", "", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
