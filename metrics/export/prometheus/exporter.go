package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/metrics/export/internaldefs"
)

// controllerSource is what the exporter reads on every scrape.
type controllerSource interface {
	MetricsSnapshot() authctl.MetricsSnapshot
	State() authctl.State
	AuditStats() authctl.AuditStats
}

// PrometheusExporter renders controller metrics and state in Prometheus text
// exposition format.
type PrometheusExporter struct {
	source controllerSource
	now    func() time.Time
}

// NewPrometheusExporter creates a Prometheus exporter that reads from the given [authctl.Controller].
func NewPrometheusExporter(controller *authctl.Controller) *PrometheusExporter {
	return NewPrometheusExporterFromSource(controller)
}

// NewPrometheusExporterFromSource creates a Prometheus exporter from any value
// exposing a metrics snapshot, the controller state, and audit stats.
func NewPrometheusExporterFromSource(source controllerSource) *PrometheusExporter {
	return &PrometheusExporter{source: source, now: time.Now}
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render writes the current metrics in Prometheus text exposition format. State
// gauges and audit counts are always present; operation counters and the
// latency histogram only while metrics are enabled.
func (p *PrometheusExporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	st := p.source.State()
	stats := p.source.AuditStats()
	now := p.now()

	var b strings.Builder
	b.Grow(8192)

	for _, def := range internaldefs.GaugeDefs {
		writeHeader(&b, def.Name, def.Help, "gauge")
		writeSample(&b, def.Name, "", "", strconv.FormatFloat(def.Value(st, now), 'f', -1, 64))
	}

	writeHeader(&b, internaldefs.LastErrorGauge, internaldefs.LastErrorGaugeHelp, "gauge")
	for _, kind := range internaldefs.ErrorKinds {
		v := "0"
		if st.LastError == kind {
			v = "1"
		}
		writeSample(&b, internaldefs.LastErrorGauge, internaldefs.LastErrorLabel, string(kind), v)
	}

	if len(snapshot.Counters) > 0 {
		for _, def := range internaldefs.CounterDefs {
			writeCounter(&b, def.Name, def.Help, snapshot.Counters[def.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		writeHistogram(&b, def.Name, def.Help, cumulative)
	}

	writeCounter(&b, internaldefs.AuditDeliveredName, internaldefs.AuditDeliveredHelp, stats.Delivered)
	writeHeader(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	types, counts := internaldefs.DroppedSeries(stats.DroppedByType)
	for i, t := range types {
		writeSample(&b, internaldefs.AuditDroppedName, internaldefs.AuditDroppedLabel, t, strconv.FormatUint(counts[i], 10))
	}
	writeCounter(&b, internaldefs.AuditSinkPanicsName, internaldefs.AuditSinkPanicsHelp, stats.SinkPanics)

	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(kind)
	b.WriteByte('\n')
}

func writeSample(b *strings.Builder, name, label, labelValue, value string) {
	b.WriteString(name)
	if label != "" {
		b.WriteByte('{')
		b.WriteString(label)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(labelValue))
		b.WriteString("\"}")
	}
	b.WriteByte(' ')
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	writeHeader(b, name, help, "counter")
	writeSample(b, name, "", "", strconv.FormatUint(value, 10))
}

func writeHistogram(b *strings.Builder, name, help string, cumulative [8]uint64) {
	writeHeader(b, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		writeSample(b, name+"_bucket", "le", le, strconv.FormatUint(cumulative[i], 10))
	}
	writeSample(b, name+"_count", "", "", strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	// Snapshots carry no sum.
	writeSample(b, name+"_sum", "", "", "0")
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	v = strings.ReplaceAll(v, "\n", "\\n")
	return v
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
