// Package tracing configures OpenTelemetry for the services and carries
// trace context across the bus.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"pdlbus/internal/config"
	"pdlbus/internal/constants"
	pkgerrors "pdlbus/pkg/errors"
)

const defaultServiceName = "pdlbus"

// TracerProvider owns the SDK provider installed by Init.
type TracerProvider struct {
	sdk      *sdktrace.TracerProvider
	exporter bool
}

// Exporting reports whether spans leave the process.
func (p *TracerProvider) Exporting() bool {
	return p != nil && p.exporter
}

func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p == nil || p.sdk == nil {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// Init installs the W3C propagator unconditionally so upstream trace ids
// survive a hop even when export is disabled. With cfg.Enabled it also
// installs a batching OTLP/gRPC exporter.
func Init(cfg config.TracingConfig, serviceName string) (*TracerProvider, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return &TracerProvider{sdk: sdktrace.NewTracerProvider()}, nil
	}

	sampler, err := ParseSampler(cfg.Sampler)
	if err != nil {
		return nil, err
	}

	name := firstNonEmpty(serviceName, cfg.ServiceName, defaultServiceName)
	ctx, cancel := context.WithTimeout(context.Background(), constants.TracingExporterTimeout)
	defer cancel()

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(constants.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build tracing resource: %w", err)
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create otlp exporter for %s: %w", cfg.OTLP.Endpoint, err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(sdk)

	return &TracerProvider{sdk: sdk, exporter: true}, nil
}

// ParseSampler maps tracing.sampler onto an SDK sampler. An empty type
// samples everything.
func ParseSampler(cfg config.SamplerConfig) (sdktrace.Sampler, error) {
	ratio := func() (sdktrace.Sampler, error) {
		if cfg.Param < 0 || cfg.Param > 1 {
			return nil, pkgerrors.ErrConfiguration.WithMessage(
				fmt.Sprintf("tracing.sampler.param must be within [0, 1], got %v", cfg.Param))
		}
		return sdktrace.TraceIDRatioBased(cfg.Param), nil
	}

	switch strings.ToLower(cfg.Type) {
	case "", "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "traceidratio":
		return ratio()
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case "parentbased_traceidratio":
		s, err := ratio()
		if err != nil {
			return nil, err
		}
		return sdktrace.ParentBased(s), nil
	default:
		return nil, pkgerrors.ErrConfiguration.WithMessage("unknown tracing.sampler.type: " + cfg.Type)
	}
}

func GetTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
