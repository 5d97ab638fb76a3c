package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/siteauth"
	"github.com/MrEthical07/siteauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is the read side of the engine the exporter needs.
type Source interface {
	MetricsSnapshot() siteauth.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         siteauth.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      siteauth.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes engine counters on every collection cycle of the
// caller's MeterProvider.
type Exporter struct {
	source       Source
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers every siteauth series on meter, read from engine.
func NewExporter(meter metric.Meter, engine *siteauth.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewExporterFromSource(meter, engine)
}

func NewExporterFromSource(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	r := &registrar{meter: meter}
	e := &Exporter{source: source}

	for _, def := range internaldefs.CounterDefs {
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: r.counter(def.Name, def.Help)})
	}
	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for _, suffix := range internaldefs.HistogramBoundSuffix {
			h.buckets = append(h.buckets, r.gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count."))
		}
		h.count = r.gauge(def.Name+"_count", "Histogram sample count.")
		e.histograms = append(e.histograms, h)
	}
	e.auditDropped = r.counter(internaldefs.AuditDroppedName, "Audit events dropped under backpressure.")

	if r.err != nil {
		return nil, r.err
	}

	registration, err := meter.RegisterCallback(e.observe, r.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration

	return e, nil
}

// registrar creates instruments and remembers the first failure.
type registrar struct {
	meter       metric.Meter
	observables []metric.Observable
	err         error
}

func (r *registrar) counter(name, help string) metric.Int64ObservableCounter {
	if r.err != nil {
		return nil
	}
	ins, err := r.meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		r.err = fmt.Errorf("create observable counter %s: %w", name, err)
		return nil
	}
	r.observables = append(r.observables, ins)
	return ins
}

func (r *registrar) gauge(name, help string) metric.Int64ObservableGauge {
	if r.err != nil {
		return nil
	}
	ins, err := r.meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		r.err = fmt.Errorf("create observable gauge %s: %w", name, err)
		return nil
	}
	r.observables = append(r.observables, ins)
	return ins
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snap.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[h.id]))
		for i, ins := range h.buckets {
			o.ObserveInt64(ins, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
