package otel

import (
	"context"
	"errors"
	"fmt"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is the read side of an Engine.
type MetricsSource interface {
	Surface() string
	MetricsSnapshot() portalAuth.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         portalAuth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      portalAuth.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type labelledSource struct {
	source MetricsSource
	attrs  metric.MeasurementOption
}

// OTelExporter observes engine counters on every collection cycle. Each
// observation carries the surface attribute of the engine it came from.
type OTelExporter struct {
	sources      []labelledSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

func NewOTelExporter(meter metric.Meter, engines ...*portalAuth.Engine) (*OTelExporter, error) {
	sources := make([]MetricsSource, 0, len(engines))
	for _, e := range engines {
		if e != nil {
			sources = append(sources, e)
		}
	}
	return NewOTelExporterFromSources(meter, sources...)
}

func NewOTelExporterFromSources(meter metric.Meter, sources ...MetricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if len(sources) == 0 {
		return nil, ErrNilSource
	}

	exporter := &OTelExporter{
		sources:    make([]labelledSource, 0, len(sources)),
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}
	for _, src := range sources {
		if src == nil {
			return nil, ErrNilSource
		}
		exporter.sources = append(exporter.sources, labelledSource{
			source: src,
			attrs:  metric.WithAttributes(attribute.String(internaldefs.SurfaceLabel, src.Surface())),
		})
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative login latency bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Total login latency samples."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped under dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *OTelExporter) observe(_ context.Context, observer metric.Observer) error {
	for _, ls := range e.sources {
		snapshot := ls.source.MetricsSnapshot()
		for _, c := range e.counters {
			observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]), ls.attrs)
		}
		for _, h := range e.histograms {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
			for i := range cumulative {
				observer.ObserveInt64(h.buckets[i], int64(cumulative[i]), ls.attrs)
			}
			observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]), ls.attrs)
		}
		observer.ObserveInt64(e.auditDropped, int64(ls.source.AuditDropped()), ls.attrs)
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
