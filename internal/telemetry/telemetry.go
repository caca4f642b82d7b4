// Package telemetry installs the OpenTelemetry tracer provider.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// exporterSettings is what the OTEL_* environment selects.
type exporterSettings struct {
	endpoint   string
	insecure   bool
	sampleRate float64
}

func settingsFromEnv() exporterSettings {
	return exporterSettings{
		endpoint:   strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		insecure:   !strings.EqualFold(strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")), "false"),
		sampleRate: parseSampleRate(os.Getenv("OTEL_TRACE_SAMPLE_RATE")),
	}
}

// exporterOptions accepts a bare host:port or a full URL. An https URL
// always uses TLS.
func (s exporterSettings) exporterOptions() ([]otlptracehttp.Option, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithTimeout(3 * time.Second),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	}
	if !strings.Contains(s.endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpoint(s.endpoint))
		if s.insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return opts, nil
	}
	u, err := url.Parse(s.endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("telemetry: invalid OTLP endpoint %q", s.endpoint)
	}
	opts = append(opts, otlptracehttp.WithEndpoint(u.Host))
	if u.Path != "" && u.Path != "/" {
		opts = append(opts, otlptracehttp.WithURLPath(u.Path))
	}
	if u.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return opts, nil
}

// Init installs a global tracer provider when OTEL_EXPORTER_OTLP_ENDPOINT is
// set and returns its shutdown func. Without an endpoint tracing is a noop.
func Init(ctx context.Context, serviceName, serviceVersion string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	settings := settingsFromEnv()
	if settings.endpoint == "" {
		return noop, nil
	}

	opts, err := settings.exporterOptions()
	if err != nil {
		return noop, err
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracehttp.New(initCtx, opts...)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
	)
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.sampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// parseSampleRate falls back to 1 for empty or out-of-range values.
func parseSampleRate(raw string) float64 {
	rate, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || rate < 0 || rate > 1 {
		return 1
	}
	return rate
}

// Fail records err on span and marks it failed with the given description.
func Fail(span trace.Span, err error, description string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}
