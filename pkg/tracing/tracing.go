// Package tracing configures OpenTelemetry for the client and the collector
// and propagates trace context over HTTP and Kafka.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"courier/internal/config"
)

// Tracer names used across the client.
const (
	TracerQueue      = "courier/queue"
	TracerSubmission = "courier/submission"
	TracerPipeline   = "courier/pipeline"
	TracerKafka      = "courier/kafka"
)

const exporterTimeout = 5 * time.Second

var samplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":  func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off": func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.TraceIDRatioBased(ratio)
	},
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	},
}

// Provider owns the SDK tracer provider. When tracing is disabled it holds
// nothing and every method is a no-op.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

func (p *Provider) Enabled() bool {
	return p != nil && p.sdk != nil
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if !p.Enabled() {
		return otel.Tracer(name)
	}
	return p.sdk.Tracer(name)
}

// Shutdown flushes pending spans and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	if err := p.sdk.ForceFlush(ctx); err != nil {
		return fmt.Errorf("failed to flush spans: %w", err)
	}
	return p.sdk.Shutdown(ctx)
}

// Init installs a global OTLP tracer provider and the W3C propagators.
// A disabled config leaves the global no-op provider in place.
func Init(cfg config.TracingConfig, serviceName string) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	res, err := newResource(cfg, serviceName)
	if err != nil {
		return nil, err
	}
	exporter, err := newExporter(cfg.OTLP)
	if err != nil {
		return nil, err
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(cfg.Sampler)),
	)
	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{sdk: sdk}, nil
}

func newResource(cfg config.TracingConfig, serviceName string) (*resource.Resource, error) {
	for _, name := range []string{serviceName, cfg.ServiceName, "courier"} {
		if name != "" {
			serviceName = name
			break
		}
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func newExporter(cfg config.OTLPConfig) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exporterTimeout)
	defer cancel()

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return exporter, nil
}

// newSampler falls back to always_on for unknown types.
func newSampler(cfg config.SamplerConfig) sdktrace.Sampler {
	build, ok := samplers[cfg.Type]
	if !ok {
		build = samplers["always_on"]
	}
	return build(cfg.Param)
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
