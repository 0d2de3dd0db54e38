package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"basegraph.app/hookrelay/core/config"
)

const serviceNamespace = "hookrelay"

// Telemetry owns the trace and log providers of one hookrelay process.
type Telemetry struct {
	shutdowns []func(context.Context) error
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range t.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Setup exports traces and logs of the given process role over OTLP/HTTP.
// It returns nil when no endpoint is configured, so callers must nil-check
// before Shutdown.
func Setup(ctx context.Context, cfg config.Config, role config.ServiceType) (*Telemetry, error) {
	if !cfg.OTel.Enabled() {
		return nil, nil
	}

	res, err := Resource(cfg, role)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	headers := ParseHeaders(cfg.OTel.Headers)
	t := &Telemetry{}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.OTel.Endpoint+"/v1/traces"),
		otlptracehttp.WithHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	t.shutdowns = append(t.shutdowns, func(ctx context.Context) error {
		if err := tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("tracer shutdown: %w", err)
		}
		return nil
	})

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpointURL(cfg.OTel.Endpoint+"/v1/logs"),
		otlploghttp.WithHeaders(headers),
	)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	t.shutdowns = append(t.shutdowns, func(ctx context.Context) error {
		if err := loggerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("logger shutdown: %w", err)
		}
		return nil
	})

	return t, nil
}

// Resource describes a hookrelay process. Server and worker report as
// separate services in one namespace. A worker's instance id is its stream
// consumer name.
func Resource(cfg config.Config, role config.ServiceType) (*resource.Resource, error) {
	name := cfg.OTel.ServiceName
	if name == "" {
		name = serviceNamespace
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNamespace(serviceNamespace),
		semconv.ServiceName(name + "-" + string(role)),
		semconv.ServiceVersion(cfg.OTel.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Env),
		attribute.String("hookrelay.role", string(role)),
	}
	if role == config.ServiceTypeWorker && cfg.Pipeline.RedisConsumer != "" {
		attrs = append(attrs,
			semconv.ServiceInstanceID(cfg.Pipeline.RedisConsumer),
			attribute.String("hookrelay.stream", cfg.Pipeline.RedisStream),
		)
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// ParseHeaders reads OTEL_EXPORTER_OTLP_HEADERS style "k1=v1,k2=v2" lists.
// Pairs without "=" are skipped.
func ParseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			headers[key] = strings.TrimSpace(value)
		}
	}
	return headers
}
