package internaldefs

import (
	"strings"
	"testing"

	portalAuth "github.com/MrEthical07/portalAuth"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	seen := make(map[portalAuth.MetricID]bool, len(CounterDefs))
	names := make(map[string]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if seen[def.ID] || names[def.Name] {
			t.Fatalf("duplicate definition %+v", def)
		}
		if !strings.HasPrefix(def.Name, "portalauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
	// Every MetricID except the latency histogram is a counter.
	if len(CounterDefs)+len(HistogramDefs) != portalAuth.MetricCount {
		t.Fatalf("definitions cover %d of %d metrics", len(CounterDefs)+len(HistogramDefs), portalAuth.MetricCount)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
