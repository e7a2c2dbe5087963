package segment

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/srediag/shm-segment"

// managerMetrics are the Prometheus collectors of one Manager. They are
// always live; registration only happens when Options.Registerer is set, so
// two managers never fight over the default registry.
type managerMetrics struct {
	created     prometheus.Counter
	unlinked    prometheus.Counter
	errors      *prometheus.CounterVec
	handles     prometheus.Gauge
	mappings    prometheus.Gauge
	mappedBytes prometheus.Gauge
}

func newManagerMetrics(r prometheus.Registerer) *managerMetrics {
	mm := &managerMetrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmseg_segments_created_total",
			Help: "Segments created or opened with create-or-open.",
		}),
		unlinked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmseg_segments_unlinked_total",
			Help: "Segment name bindings removed.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shmseg_operation_errors_total",
			Help: "Failed segment operations by operation.",
		}, []string{"op"}),
		handles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shmseg_open_handles",
			Help: "Descriptors currently tracked by the manager.",
		}),
		mappings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shmseg_active_mappings",
			Help: "Mappings currently tracked by the manager.",
		}),
		mappedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shmseg_mapped_bytes",
			Help: "Bytes currently mapped through the manager.",
		}),
	}
	if r != nil {
		r.MustRegister(mm.created, mm.unlinked, mm.errors, mm.handles, mm.mappings, mm.mappedBytes)
	}
	return mm
}

// otelInstruments mirror the operation volume for OTel consumers. Built on
// the noop meter when no Meter is configured.
type otelInstruments struct {
	ops         metric.Int64Counter
	mappedBytes metric.Int64UpDownCounter
}

func newOtelInstruments(meter metric.Meter) *otelInstruments {
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	ops, err := meter.Int64Counter("shmseg.operations",
		metric.WithDescription("Completed segment lifecycle operations."))
	if err != nil {
		internalLogger.warnf("otel ops counter: %v", err)
		ops, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("shmseg.operations")
	}
	mapped, err := meter.Int64UpDownCounter("shmseg.mapped_bytes",
		metric.WithDescription("Bytes currently mapped."))
	if err != nil {
		internalLogger.warnf("otel mapped bytes counter: %v", err)
		mapped, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64UpDownCounter("shmseg.mapped_bytes")
	}
	return &otelInstruments{ops: ops, mappedBytes: mapped}
}

func tracerOrNoop(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return tracenoop.NewTracerProvider().Tracer(instrumentationName)
}
