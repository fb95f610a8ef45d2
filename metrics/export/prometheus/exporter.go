package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/metrics/export/internaldefs"
)

// MetricsSource is the read side of an Engine.
type MetricsSource interface {
	Surface() string
	MetricsSnapshot() portalAuth.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders the counters of one or more login surfaces in
// Prometheus text exposition format. Each series carries a surface label.
type PrometheusExporter struct {
	sources []MetricsSource
}

// NewPrometheusExporter exports the given engines, typically one per surface.
func NewPrometheusExporter(engines ...*portalAuth.Engine) *PrometheusExporter {
	sources := make([]MetricsSource, 0, len(engines))
	for _, e := range engines {
		if e != nil {
			sources = append(sources, e)
		}
	}
	return &PrometheusExporter{sources: sources}
}

func NewPrometheusExporterFromSources(sources ...MetricsSource) *PrometheusExporter {
	return &PrometheusExporter{sources: sources}
}

// Handler serves Render on every request.
func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

type surfaceSnapshot struct {
	label    string
	snapshot portalAuth.MetricsSnapshot
	dropped  uint64
}

// Render returns the exposition text. It is empty when no source has
// metrics enabled and none dropped audit events.
func (p *PrometheusExporter) Render() string {
	if p == nil || len(p.sources) == 0 {
		return ""
	}

	snaps := make([]surfaceSnapshot, 0, len(p.sources))
	for _, src := range p.sources {
		s := surfaceSnapshot{
			label:    surfaceLabel(src.Surface()),
			snapshot: src.MetricsSnapshot(),
			dropped:  src.AuditDropped(),
		}
		if len(s.snapshot.Counters) == 0 && len(s.snapshot.Histograms) == 0 && s.dropped == 0 {
			continue
		}
		snaps = append(snaps, s)
	}
	if len(snaps) == 0 {
		return ""
	}

	var b strings.Builder
	b.Grow(4096 * len(snaps))

	for _, def := range internaldefs.CounterDefs {
		writeHeader(&b, def.Name, def.Help, "counter")
		for _, s := range snaps {
			writeSample(&b, def.Name, s.label, "", s.snapshot.Counters[def.ID])
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		writeHeader(&b, def.Name, def.Help, "histogram")
		for _, s := range snaps {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.snapshot.Histograms[def.ID]))
			for i, le := range internaldefs.HistogramBounds {
				writeSample(&b, def.Name+"_bucket", s.label, `,le="`+le+`"`, cumulative[i])
			}
			writeSample(&b, def.Name+"_count", s.label, "", cumulative[len(cumulative)-1])
			// The engine keeps bucket counts only.
			writeSample(&b, def.Name+"_sum", s.label, "", 0)
		}
	}

	writeHeader(&b, internaldefs.AuditDroppedName, "Audit events dropped under dispatcher backpressure.", "counter")
	for _, s := range snaps {
		writeSample(&b, internaldefs.AuditDroppedName, s.label, "", s.dropped)
	}

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

func writeSample(b *strings.Builder, name, surface, extraLabels string, value uint64) {
	b.WriteString(name)
	b.WriteString(`{` + internaldefs.SurfaceLabel + `="`)
	b.WriteString(surface)
	b.WriteByte('"')
	b.WriteString(extraLabels)
	b.WriteString("} ")
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func surfaceLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
