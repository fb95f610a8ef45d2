package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	portalAuth "github.com/MrEthical07/portalAuth"
)

type fakeSource struct {
	surface  string
	snapshot portalAuth.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) Surface() string                             { return f.surface }
func (f fakeSource) MetricsSnapshot() portalAuth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func emptySnapshot() portalAuth.MetricsSnapshot {
	return portalAuth.MetricsSnapshot{
		Counters:   map[portalAuth.MetricID]uint64{},
		Histograms: map[portalAuth.MetricID][]uint64{},
	}
}

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSources(fakeSource{surface: "admin", snapshot: emptySnapshot()})
	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output for disabled metrics, got:\n%s", got)
	}
	if got := NewPrometheusExporter().Render(); got != "" {
		t.Fatalf("expected empty output without engines, got:\n%s", got)
	}
}

func TestRenderLabelsEachSurface(t *testing.T) {
	exp := NewPrometheusExporterFromSources(
		fakeSource{
			surface: "admin",
			snapshot: portalAuth.MetricsSnapshot{
				Counters: map[portalAuth.MetricID]uint64{portalAuth.MetricLockoutTriggered: 2},
				Histograms: map[portalAuth.MetricID][]uint64{
					portalAuth.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
				},
			},
			dropped: 2,
		},
		fakeSource{
			surface: "member_portal",
			snapshot: portalAuth.MetricsSnapshot{
				Counters:   map[portalAuth.MetricID]uint64{portalAuth.MetricLoginSuccess: 7},
				Histograms: map[portalAuth.MetricID][]uint64{},
			},
		},
	)

	out := exp.Render()
	for _, want := range []string{
		`portalauth_lockout_triggered_total{surface="admin"} 2`,
		`portalauth_login_success_total{surface="member_portal"} 7`,
		`portalauth_login_latency_seconds_bucket{surface="admin",le="0.005"} 1`,
		`portalauth_login_latency_seconds_bucket{surface="admin",le="+Inf"} 36`,
		`portalauth_login_latency_seconds_count{surface="member_portal"} 0`,
		`portalauth_audit_dropped_total{surface="admin"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
	if strings.Count(out, "# TYPE portalauth_login_success_total counter") != 1 {
		t.Fatal("each metric family must be declared once")
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSources(fakeSource{
		surface: "member_portal",
		snapshot: portalAuth.MetricsSnapshot{
			Counters:   map[portalAuth.MetricID]uint64{portalAuth.MetricLoginSuccess: 1},
			Histograms: map[portalAuth.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSurfaceLabelEscaping(t *testing.T) {
	if got := surfaceLabel(`a"b\c`); got != `a\"b\\c` {
		t.Fatalf("got %q", got)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSources(fakeSource{
		surface: "member_portal",
		snapshot: portalAuth.MetricsSnapshot{
			Counters: map[portalAuth.MetricID]uint64{
				portalAuth.MetricLoginSuccess:        1000,
				portalAuth.MetricLoginRejected:       40,
				portalAuth.MetricLockoutTriggered:    3,
				portalAuth.MetricCodeIssued:          80,
				portalAuth.MetricCodeVerified:        70,
				portalAuth.MetricSecondFactorFailure: 5,
			},
			Histograms: map[portalAuth.MetricID][]uint64{
				portalAuth.MetricLoginLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
