// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry initializes OpenTelemetry for the rangestats service.
//
// Packages call otel.Tracer() and otel.Meter() directly; Init decides where
// spans and metrics go. Tracing is off unless an exporter is chosen.
// Metrics default to Prometheus, served from the handler on the returned
// Telemetry.
//
// # Environment Variables
//
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: prometheus)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - RANGESTATS_ENV: environment name (default: development)
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// Sentinel errors for telemetry initialization.
var (
	// ErrNilContext is returned when Init is called with a nil context.
	ErrNilContext = errors.New("ctx must not be nil")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("unknown exporter")
)

// TraceExporter names where spans are sent.
type TraceExporter string

// Trace exporters accepted in Config.TraceExporter.
const (
	TraceNone   TraceExporter = "none"
	TraceOTLP   TraceExporter = "otlp"
	TraceStdout TraceExporter = "stdout"
)

// MetricExporter names where metrics are sent.
type MetricExporter string

// Metric exporters accepted in Config.MetricExporter.
const (
	MetricNone       MetricExporter = "none"
	MetricPrometheus MetricExporter = "prometheus"
	MetricStdout     MetricExporter = "stdout"
)

// Config controls telemetry behavior.
type Config struct {
	// ServiceName identifies this service in traces and metrics.
	ServiceName string `yaml:"service_name" json:"service_name" validate:"required"`

	// ServiceVersion is the version string for this service.
	ServiceVersion string `yaml:"service_version" json:"service_version"`

	// Environment identifies the deployment environment.
	Environment string `yaml:"environment" json:"environment"`

	TraceExporter  TraceExporter  `yaml:"trace_exporter" json:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter MetricExporter `yaml:"metric_exporter" json:"metric_exporter" validate:"oneof=prometheus stdout none"`

	// TraceSampleRatio is the fraction of root spans kept, in [0, 1].
	// Child spans follow their parent's decision.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio" json:"trace_sample_ratio" validate:"gte=0,lte=1"`

	// OTLPEndpoint is the OTLP receiver endpoint for traces.
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`

	// OTLPInsecure disables TLS for OTLP connections.
	OTLPInsecure bool `yaml:"otlp_insecure" json:"otlp_insecure"`
}

// DefaultConfig returns defaults for local use, with environment overrides.
func DefaultConfig() Config {
	return Config{
		ServiceName:      "rangestats",
		ServiceVersion:   "1.0.0",
		Environment:      getEnvOr("RANGESTATS_ENV", "development"),
		TraceExporter:    TraceExporter(getEnvOr("OTEL_TRACES_EXPORTER", string(TraceNone))),
		MetricExporter:   MetricExporter(getEnvOr("OTEL_METRICS_EXPORTER", string(MetricPrometheus))),
		TraceSampleRatio: 1,
		OTLPEndpoint:     getEnvOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:     true,
	}
}

// spanExporters builds the exporter for each trace backend. TraceNone has
// no entry: no provider is installed and spans stay on the no-op default.
var spanExporters = map[TraceExporter]func(context.Context, Config) (trace.SpanExporter, error){
	TraceOTLP: func(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	TraceStdout: func(context.Context, Config) (trace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	},
}

// metricReaders builds the reader for each metric backend, plus the HTTP
// handler that serves it when the backend is pulled rather than pushed.
var metricReaders = map[MetricExporter]func() (metric.Reader, http.Handler, error){
	MetricPrometheus: newPrometheusReader,
	MetricStdout: func() (metric.Reader, http.Handler, error) {
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		return metric.NewPeriodicReader(exporter), nil, nil
	},
}

// Telemetry holds the providers installed by Init.
type Telemetry struct {
	metricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// Init installs the global TracerProvider and MeterProvider chosen by cfg.
//
// Description:
//
//	Both exporter names are checked before anything is created, so an
//	unknown name leaves the globals untouched. A "none" exporter installs
//	no provider for that signal.
//
// Inputs:
//
//	ctx - Context for initialization (used for exporter connections).
//	cfg - Telemetry configuration.
//
// Outputs:
//
//	*Telemetry - Call Shutdown on exit to flush both providers.
//	error - ErrUnknownExporter for an unsupported name, or an exporter error.
//
// Example:
//
//	tel, err := telemetry.Init(ctx, cfg.Telemetry)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer tel.Shutdown(context.Background())
//
// Thread Safety: Call once at application startup.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	newSpanExporter, traced := spanExporters[cfg.TraceExporter]
	if !traced && cfg.TraceExporter != TraceNone {
		return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
	}
	newReader, metered := metricReaders[cfg.MetricExporter]
	if !metered && cfg.MetricExporter != MetricNone {
		return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	)

	tel := &Telemetry{}

	if traced {
		exporter, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s trace exporter: %w", cfg.TraceExporter, err)
		}
		tp := trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(res),
			trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.TraceSampleRatio))),
		)
		otel.SetTracerProvider(tp)
		tel.shutdownFuncs = append(tel.shutdownFuncs, tp.Shutdown)
	}

	if metered {
		reader, handler, err := newReader()
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("create %s metric exporter: %w", cfg.MetricExporter, err)
		}
		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(reader),
		)
		otel.SetMeterProvider(mp)
		tel.metricsHandler = handler
		tel.shutdownFuncs = append(tel.shutdownFuncs, mp.Shutdown)
	}

	return tel, nil
}

// MetricsHandler returns the /metrics handler, or nil unless the metric
// exporter is "prometheus".
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Shutdown flushes and stops every installed provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newPrometheusReader registers the OTel exporter on its own registry and
// serves it together with the default registry, where the dataset file
// and watcher counters live.
func newPrometheusReader() (metric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	handler := promhttp.HandlerFor(
		prometheus.Gatherers{reg, prometheus.DefaultGatherer},
		promhttp.HandlerOpts{},
	)
	return exporter, handler, nil
}

// getEnvOr returns the environment variable value or the fallback.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
