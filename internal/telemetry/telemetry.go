// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope of every span and instrument.
const ScopeName = "EventAggregator"

// Config holds OpenTelemetry configuration
type Config struct {
	Enabled     bool
	ExporterURL string
	ServiceName string
	Version     string
}

// Init installs global tracer and meter providers exporting over OTLP/HTTP.
// The returned function flushes and shuts both down.
func Init(ctx context.Context, config Config) (func(), error) {
	if !config.Enabled {
		return func() {}, nil
	}

	traceExporter, err := otlptracehttp.New(ctx, traceEndpoint(config.ExporterURL)...)
	if err != nil {
		return nil, err
	}

	metricExporter, err := otlpmetrichttp.New(ctx, metricEndpoint(config.ExporterURL)...)
	if err != nil {
		return nil, err
	}

	version := config.Version
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Ignore errors in cleanup: the collector may be gone.
		_ = errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}

// GetTracer returns the global tracer instance
func GetTracer() oteltrace.Tracer {
	return otel.Tracer(ScopeName)
}

func traceEndpoint(url string) []otlptracehttp.Option {
	if strings.Contains(url, "://") {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(url)}
	}
	return []otlptracehttp.Option{otlptracehttp.WithEndpoint(url), otlptracehttp.WithInsecure()}
}

func metricEndpoint(url string) []otlpmetrichttp.Option {
	if strings.Contains(url, "://") {
		return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(url)}
	}
	return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(url), otlpmetrichttp.WithInsecure()}
}
