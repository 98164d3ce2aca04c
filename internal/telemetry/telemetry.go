// Package telemetry provides the kernel's tracing and metrics surface: spans
// around each CGA run, governance evaluation, and reconciler tick, plus
// counters for decisions by verdict. Lite Mode deployments never configure an
// OTLP collector, so the default provider exports nowhere and spans/metrics
// are simply discarded after recording — the instrumentation calls in
// governance, cga, and reconciler stay unconditional either way.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider manages the kernel's tracer and meter and the RED (rate, errors,
// duration) instruments built on top of them.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger

	decisionCounter  metric.Int64Counter
	errorCounter     metric.Int64Counter
	durationHist     metric.Float64Histogram
	activeOperations metric.Int64UpDownCounter
}

// New builds a Provider with a resource tagged "gap-kernel". It never
// dials an external collector and registers no span processor or metric
// reader; the SDK providers stay unexported inside Provider, so spans and
// metrics are not exported anywhere.
func New(serviceVersion string) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", "gap-kernel"),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer("gap-kernel"),
		meter:          mp.Meter("gap-kernel"),
		logger:         slog.Default().With("component", "telemetry"),
	}

	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Provider) initInstruments() error {
	var err error
	p.decisionCounter, err = p.meter.Int64Counter("gap.governance.decisions",
		metric.WithDescription("governance decisions by verdict"),
		metric.WithUnit("{decision}"))
	if err != nil {
		return err
	}
	p.errorCounter, err = p.meter.Int64Counter("gap.errors",
		metric.WithDescription("errors observed across kernel operations"),
		metric.WithUnit("{error}"))
	if err != nil {
		return err
	}
	p.durationHist, err = p.meter.Float64Histogram("gap.operation.duration",
		metric.WithDescription("operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10))
	if err != nil {
		return err
	}
	p.activeOperations, err = p.meter.Int64UpDownCounter("gap.operations.active",
		metric.WithDescription("operations currently in flight"),
		metric.WithUnit("{operation}"))
	return err
}

// Tracer returns the kernel's configured tracer.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// RecordDecision increments the decision counter for a governance verdict.
func (p *Provider) RecordDecision(ctx context.Context, verdict string) {
	if p.decisionCounter != nil {
		p.decisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	}
}

// StartOperation starts a span and active-operation gauge for name, and
// returns a function to call when the operation completes; err may be nil.
func (p *Provider) StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	if p.activeOperations != nil {
		p.activeOperations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return ctx, func(err error) {
		if p.activeOperations != nil {
			p.activeOperations.Add(ctx, -1, metric.WithAttributes(attrs...))
		}
		if p.durationHist != nil {
			p.durationHist.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs...))
		}
		if err != nil {
			span.RecordError(err)
			if p.errorCounter != nil {
				p.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", name)))
			}
		}
		span.End()
	}
}

// Shutdown flushes and stops the tracer and meter providers, if any are
// configured — a Noop provider has none and this is a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
	}
	if p.meterProvider != nil {
		return p.meterProvider.Shutdown(ctx)
	}
	return nil
}

// Noop returns a Provider whose instruments are nil, so every recording
// method is a safe no-op — used by tests and by components constructed
// without a telemetry.Provider wired in.
func Noop() *Provider {
	return &Provider{tracer: trace.NewNoopTracerProvider().Tracer("gap-kernel"), logger: slog.Default()}
}
