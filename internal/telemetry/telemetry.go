// Package telemetry installs the global tracer provider and the gin tracing middleware.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"crm-platform/internal/config"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const ServiceName = "crm-platform"

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Init sets the global tracer provider for cfg.TracesExporter. "none" leaves the
// otel no-op provider in place.
func Init(cfg config.TelemetryConfig, env string) (Shutdown, error) {
	return initWithWriter(cfg, env, os.Stdout)
}

func initWithWriter(cfg config.TelemetryConfig, env string, w io.Writer) (Shutdown, error) {
	switch cfg.TracesExporter {
	case "", "none":
		return func(context.Context) error { return nil }, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("telemetry: unknown traces exporter %q", cfg.TracesExporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: stdout exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("deployment.environment", env),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown, nil
}

// Middleware starts a server span per request using the global provider.
func Middleware() gin.HandlerFunc {
	return otelgin.Middleware(ServiceName)
}
