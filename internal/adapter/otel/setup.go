// Package otel wires OpenTelemetry tracing and metrics: an OTLP/gRPC
// pipeline when an endpoint is configured and a Prometheus scrape handler
// in every process.
package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures Setup.
type Options struct {
	ServiceName string
	// Endpoint is the OTLP collector address. Empty disables OTLP export.
	Endpoint string
	Insecure bool
}

// Provider owns the installed tracer and meter providers.
type Provider struct {
	tracer   *sdktrace.TracerProvider
	meter    *sdkmetric.MeterProvider
	registry *promclient.Registry
}

// Setup installs global tracer and meter providers and the W3C propagator.
func Setup(ctx context.Context, o Options) (*Provider, error) {
	res := resource.NewSchemaless(attribute.String("service.name", o.ServiceName))

	registry := promclient.NewRegistry()
	promReader, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(promReader)}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if o.Endpoint != "" {
		metricExp, err := otlpmetricgrpc.New(ctx, metricEndpoint(o)...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		traceExp, err := otlptracegrpc.New(ctx, traceEndpoint(o)...)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExp))
		slog.Info("otlp export enabled", "endpoint", o.Endpoint)
	}

	p := &Provider{
		tracer:   sdktrace.NewTracerProvider(traceOpts...),
		meter:    sdkmetric.NewMeterProvider(meterOpts...),
		registry: registry,
	}
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return p, nil
}

// Handler serves the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return errors.Join(p.tracer.Shutdown(ctx), p.meter.Shutdown(ctx))
}

func metricEndpoint(o Options) []otlpmetricgrpc.Option {
	var opts []otlpmetricgrpc.Option
	if strings.Contains(o.Endpoint, "://") {
		opts = append(opts, otlpmetricgrpc.WithEndpointURL(o.Endpoint))
	} else {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(o.Endpoint))
	}
	if o.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func traceEndpoint(o Options) []otlptracegrpc.Option {
	var opts []otlptracegrpc.Option
	if strings.Contains(o.Endpoint, "://") {
		opts = append(opts, otlptracegrpc.WithEndpointURL(o.Endpoint))
	} else {
		opts = append(opts, otlptracegrpc.WithEndpoint(o.Endpoint))
	}
	if o.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}
