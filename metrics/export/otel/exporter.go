package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/formguard"
	"github.com/MrEthical07/formguard/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() formguard.MetricsSnapshot
	AuditDropped() uint64
}

// dimensionPoint is one attribute value of a grouped counter, with its attribute
// set built once at registration.
type dimensionPoint struct {
	id   formguard.MetricID
	opts metric.ObserveOption
}

type groupedCounter struct {
	instrument metric.Int64ObservableCounter
	points     []dimensionPoint
}

type standaloneCounter struct {
	id         formguard.MetricID
	instrument metric.Int64ObservableCounter
}

// latencyBuckets reports cumulative bucket counts on one gauge keyed by "le".
type latencyBuckets struct {
	id      formguard.MetricID
	buckets metric.Int64ObservableGauge
	bounds  [8]metric.ObserveOption
	count   metric.Int64ObservableGauge
}

// OTelExporter publishes Guard metrics as attribute-keyed OTel instruments:
// submissions by outcome, denials by reason, degradations by layer, plus latency
// buckets keyed by upper bound.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	grouped      []groupedCounter
	standalone   []standaloneCounter
	latency      []latencyBuckets
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from guard.
func NewOTelExporter(meter metric.Meter, guard *formguard.Guard) (*OTelExporter, error) {
	if guard == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, guard)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.DimensionDefs {
		ins, err := meter.Int64ObservableCounter(def.OTelName, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.OTelName, err)
		}
		g := groupedCounter{instrument: ins, points: make([]dimensionPoint, 0, len(def.Values))}
		for _, v := range def.Values {
			g.points = append(g.points, dimensionPoint{
				id:   v.ID,
				opts: metric.WithAttributeSet(attribute.NewSet(attribute.String(def.Key, v.Value))),
			})
		}
		e.grouped = append(e.grouped, g)
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.StandaloneCounters {
		ins, err := meter.Int64ObservableCounter(def.OTelName, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.OTelName, err)
		}
		e.standalone = append(e.standalone, standaloneCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		lb := latencyBuckets{id: def.ID}
		name := def.OTelName + ".buckets"
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", name, err)
		}
		lb.buckets = ins
		for i, bound := range internaldefs.HistogramBounds {
			lb.bounds[i] = metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound)))
		}

		name = def.OTelName + ".count"
		count, err := meter.Int64ObservableGauge(name, metric.WithDescription("Total samples."))
		if err != nil {
			return nil, fmt.Errorf("create gauge %s: %w", name, err)
		}
		lb.count = count
		e.latency = append(e.latency, lb)
		observables = append(observables, ins, count)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDropped.OTelName,
		metric.WithDescription(internaldefs.AuditDropped.Help),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, g := range e.grouped {
		for _, p := range g.points {
			o.ObserveInt64(g.instrument, int64(snapshot.Counters[p.id]), p.opts)
		}
	}
	for _, c := range e.standalone {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, lb := range e.latency {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[lb.id]))
		for i, v := range cumulative {
			o.ObserveInt64(lb.buckets, int64(v), lb.bounds[i])
		}
		o.ObserveInt64(lb.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
