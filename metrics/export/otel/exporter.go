package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/authctl"
	"github.com/MrEthical07/authctl/metrics/export/internaldefs"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter  = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// controllerSource is what the exporter reads on every collection cycle.
type controllerSource interface {
	MetricsSnapshot() authctl.MetricsSnapshot
	State() authctl.State
	AuditStats() authctl.AuditStats
}

type observedCounter struct {
	id         authctl.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      authctl.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type observedGauge struct {
	def        internaldefs.GaugeDef
	instrument metric.Float64ObservableGauge
}

// OTelExporter publishes controller metrics, state, and audit counts as
// observable instruments. Values are read from the source on each collection
// cycle.
type OTelExporter struct {
	source       controllerSource
	now          func() time.Time
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	gauges       []observedGauge
	lastError    metric.Int64ObservableGauge
	delivered    metric.Int64ObservableCounter
	dropped      metric.Int64ObservableCounter
	sinkPanics   metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from controller.
func NewOTelExporter(meter metric.Meter, controller *authctl.Controller) (*OTelExporter, error) {
	if controller == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, controller)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source.
func NewOTelExporterFromSource(meter metric.Meter, source controllerSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source, now: time.Now}
	var observables []metric.Observable

	for _, def := range internaldefs.GaugeDefs {
		ins, err := meter.Float64ObservableGauge(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create state gauge %s: %w", def.Name, err)
		}
		e.gauges = append(e.gauges, observedGauge{def: def, instrument: ins})
		observables = append(observables, ins)
	}

	lastError, err := meter.Int64ObservableGauge(internaldefs.LastErrorGauge, metric.WithDescription(internaldefs.LastErrorGaugeHelp))
	if err != nil {
		return nil, fmt.Errorf("create last error gauge: %w", err)
	}
	e.lastError = lastError
	observables = append(observables, lastError)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s_count: %w", def.Name, err)
		}
		h.count = count
		observables = append(observables, count)
		e.histograms = append(e.histograms, h)
	}

	for _, c := range []struct {
		dst        *metric.Int64ObservableCounter
		name, help string
	}{
		{&e.delivered, internaldefs.AuditDeliveredName, internaldefs.AuditDeliveredHelp},
		{&e.dropped, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp},
		{&e.sinkPanics, internaldefs.AuditSinkPanicsName, internaldefs.AuditSinkPanicsHelp},
	} {
		ins, err := meter.Int64ObservableCounter(c.name, metric.WithDescription(c.help))
		if err != nil {
			return nil, fmt.Errorf("create audit counter %s: %w", c.name, err)
		}
		*c.dst = ins
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	st := e.source.State()
	now := e.now()
	for _, g := range e.gauges {
		o.ObserveFloat64(g.instrument, g.def.Value(st, now))
	}
	for _, kind := range internaldefs.ErrorKinds {
		var v int64
		if st.LastError == kind {
			v = 1
		}
		o.ObserveInt64(e.lastError, v, metric.WithAttributes(attribute.String(internaldefs.LastErrorLabel, string(kind))))
	}

	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) > 0 {
		for _, c := range e.counters {
			o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
		}
	}
	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i := range cumulative {
			o.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	stats := e.source.AuditStats()
	o.ObserveInt64(e.delivered, int64(stats.Delivered))
	types, counts := internaldefs.DroppedSeries(stats.DroppedByType)
	for i, t := range types {
		o.ObserveInt64(e.dropped, int64(counts[i]), metric.WithAttributes(attribute.String(internaldefs.AuditDroppedLabel, t)))
	}
	o.ObserveInt64(e.sinkPanics, int64(stats.SinkPanics))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
