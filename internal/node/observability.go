package node

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Observability struct {
	Tracer oteltrace.Tracer
	Meter  metric.Meter

	traceProvider   *sdktrace.TracerProvider
	BatchCounter    metric.Int64Counter
	ScenarioLatency metric.Int64Histogram
	AbortCounter    metric.Int64Counter
	UnknownCounter  metric.Int64Counter
}

func SetupObservability(ctx context.Context, cfg ObservabilityConfig) (*Observability, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "he300-node"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	sampler := sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	if cfg.OTLPEndpoint != "" {
		exporter, exportErr := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if exportErr != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", exportErr)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler),
		)
	} else {
		slog.Info("otel trace exporter not configured; using local tracer provider")
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	meter := otel.Meter(serviceName)
	tracer := otel.Tracer(serviceName)
	batchCounter, _ := meter.Int64Counter("he300_batch_total")
	scenarioLatency, _ := meter.Int64Histogram("he300_scenario_latency_ms")
	abortCounter, _ := meter.Int64Counter("he300_batch_abort_total")
	unknownCounter, _ := meter.Int64Counter("he300_scenario_unknown_total")
	return &Observability{
		Tracer:          tracer,
		Meter:           meter,
		traceProvider:   tp,
		BatchCounter:    batchCounter,
		ScenarioLatency: scenarioLatency,
		AbortCounter:    abortCounter,
		UnknownCounter:  unknownCounter,
	}, nil
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.traceProvider == nil {
		return nil
	}
	return o.traceProvider.Shutdown(ctx)
}

func (o *Observability) MarkBatch(ctx context.Context, status string) {
	if o == nil {
		return
	}
	o.BatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) MarkScenario(ctx context.Context, category string, latencyMS int64) {
	if o == nil {
		return
	}
	o.ScenarioLatency.Record(ctx, latencyMS, metric.WithAttributes(
		attribute.String("category", category),
	))
}

func (o *Observability) MarkAbort(ctx context.Context) {
	if o == nil {
		return
	}
	o.AbortCounter.Add(ctx, 1)
}

func (o *Observability) MarkUnknown(ctx context.Context, category string) {
	if o == nil {
		return
	}
	o.UnknownCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}
