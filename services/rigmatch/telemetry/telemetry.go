// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry trace and meter providers
// used by the rigmatch binaries.
//
// # Configuration
//
//	RIGMATCH_OTEL_ENABLED=true        enable tracing (default: off)
//	RIGMATCH_OTEL_STDOUT=true         write spans and metrics to stderr
//	OTEL_EXPORTER_OTLP_ENDPOINT=...   OTLP gRPC endpoint for spans
//	RIGMATCH_OTLP_TLS=true            dial the OTLP endpoint over TLS
//
// OTel metrics are always bridged into the Prometheus registry so they are
// served next to the promauto collectors on /metrics.
package telemetry

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Config selects exporters.
type Config struct {
	ServiceName string
	Version     string

	// Enabled turns on span export. Metrics are bridged regardless.
	Enabled bool

	// Stdout writes spans and metrics to Writer.
	Stdout bool

	// Writer receives stdout exports. Defaults to os.Stderr.
	Writer io.Writer

	// OTLPEndpoint is a host:port for OTLP gRPC span export.
	OTLPEndpoint string

	// OTLPTLS dials the OTLP endpoint with system TLS roots instead of
	// plaintext.
	OTLPTLS bool

	// Registerer receives the OTel metric bridge. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer promclient.Registerer

	// MetricInterval is the stdout metric export interval.
	MetricInterval time.Duration
}

// FromEnv reads the RIGMATCH_OTEL_* and OTEL_EXPORTER_OTLP_ENDPOINT
// variables.
func FromEnv(serviceName, version string) Config {
	return Config{
		ServiceName:  serviceName,
		Version:      version,
		Enabled:      os.Getenv("RIGMATCH_OTEL_ENABLED") == "true",
		Stdout:       os.Getenv("RIGMATCH_OTEL_STDOUT") == "true",
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPTLS:      os.Getenv("RIGMATCH_OTLP_TLS") == "true",
	}
}

// ShutdownFunc flushes and stops the installed providers.
type ShutdownFunc func(context.Context) error

// Init installs global providers for cfg.
//
// Description:
//
//	The meter provider always carries a Prometheus reader. The trace
//	provider is a no-op unless cfg.Enabled; when enabled without an OTLP
//	endpoint, spans go to stdout. The W3C trace-context propagator is set
//	either way so incoming traceparent headers are honoured.
//
// Outputs:
//
//	ShutdownFunc - Flushes exporters. Never nil.
//	error - Non-nil if an exporter could not be created.
func Init(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.Registerer == nil {
		cfg.Registerer = promclient.DefaultRegisterer
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = 15 * time.Second
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("telemetry: resource: %w", err)
	}

	var shutdownFns []func(context.Context) error

	mp, err := buildMeterProvider(cfg, res)
	if err != nil {
		return noopShutdown, fmt.Errorf("telemetry: meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)
	shutdownFns = append(shutdownFns, mp.Shutdown)

	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	} else {
		tp, err := buildTracerProvider(ctx, cfg, res)
		if err != nil {
			_ = mp.Shutdown(ctx)
			return noopShutdown, fmt.Errorf("telemetry: trace provider: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFns = append(shutdownFns, tp.Shutdown)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func noopShutdown(context.Context) error { return nil }

func otlpCredentials(useTLS bool) credentials.TransportCredentials {
	if useTLS {
		return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return insecure.NewCredentials()
}

func buildTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporters []sdktrace.SpanExporter

	if cfg.Stdout {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	}
	if cfg.OTLPEndpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithTLSCredentials(otlpCredentials(cfg.OTLPTLS)),
			otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName+"/"+cfg.Version)),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp trace exporter: %w", err)
		}
		exporters = append(exporters, exp)
	}
	if len(exporters) == 0 {
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, exp)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	for _, exp := range exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func buildMeterProvider(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := otelprom.New(otelprom.WithRegisterer(cfg.Registerer))
	if err != nil {
		return nil, fmt.Errorf("prometheus bridge: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	}
	if cfg.Stdout {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval)),
		))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
