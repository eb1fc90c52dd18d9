package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProviderConfig configures the process tracer provider.
type ProviderConfig struct {
	ServiceName string
	// Endpoint of an OTLP/HTTP collector, e.g. "localhost:4318". Empty disables export.
	Endpoint   string
	Insecure   bool
	Headers    map[string]string
	Timeout    time.Duration
	SampleRate float64
}

// Provider owns the sdk tracer provider and implements startup.StartupDependency.
type Provider struct {
	config   ProviderConfig
	provider *sdktrace.TracerProvider
}

func NewProvider(cfg ProviderConfig) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 1
	}
	return &Provider{config: cfg}
}

func (p *Provider) GetName() string {
	return "tracing"
}

func (p *Provider) DependsOn() []string {
	return nil
}

func (p *Provider) Start(ctx context.Context) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", p.config.ServiceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SampleRate))),
	}

	if p.config.Endpoint != "" {
		exporterOpts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(p.config.Endpoint),
			otlptracehttp.WithTimeout(p.config.Timeout),
		}
		if p.config.Insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		if len(p.config.Headers) > 0 {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(p.config.Headers))
		}

		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	p.provider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	SetTracer(p.provider.Tracer(p.config.ServiceName))
	return nil
}

func (p *Provider) Stop(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
