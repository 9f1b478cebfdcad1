// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry configures the process-wide OpenTelemetry tracer.
//
// Description:
//
//	The store, index and ECL evaluator create spans through
//	otel.Tracer(); without Init those spans are no-ops. Init installs a
//	real TracerProvider when an exporter is selected, so span output is
//	an operator decision, not a code change.
//
// Thread Safety: Init must run once at startup, before spans are
// created. The installed provider is safe for concurrent use.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

// ErrUnknownExporter indicates an unrecognized exporter name.
var ErrUnknownExporter = fmt.Errorf("telemetry: unknown exporter")

// Config controls tracer setup.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the version string for this service.
	ServiceVersion string

	// TraceExporter selects the trace exporter: "stdout" or "none".
	TraceExporter string
}

// DefaultConfig returns defaults with OTEL_TRACES_EXPORTER honored.
// Tracing is off unless the operator asks for it.
func DefaultConfig() Config {
	exporter := os.Getenv("OTEL_TRACES_EXPORTER")
	if exporter == "" {
		exporter = "none"
	}
	return Config{
		ServiceName:    "terminology",
		ServiceVersion: "1.0.0",
		TraceExporter:  exporter,
	}
}

// Init installs the tracer provider selected by cfg and returns a
// shutdown function to flush pending spans. With the "none" exporter
// both are no-ops.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if cfg.TraceExporter == "none" || cfg.TraceExporter == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newExporter(cfg Config) (trace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
}
