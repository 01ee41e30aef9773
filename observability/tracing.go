// Package observability configures OpenTelemetry tracing.
//
// Information Hiding:
// - Exporter selection (stdout, OTLP gRPC, OTLP HTTP) driven by environment
// - Sampler and resource construction encapsulated
// - Callers only see StartSpan/EndSpan
package observability

import (
	"context"
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
)

const tracerName = "github.com/richinex/biotools"

// TracingConfig selects and configures a span exporter.
type TracingConfig struct {
	// Exporter is none, stdout, otlp (gRPC) or otlphttp.
	Exporter    string
	Endpoint    string
	Headers     map[string]string
	Insecure    bool
	Sampler     string
	Ratio       float64
	Environment string
}

// TracingConfigFromEnv reads BIOTOOLS_OTEL_* variables.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfig{
		Exporter:    strings.ToLower(strings.TrimSpace(os.Getenv("BIOTOOLS_OTEL_EXPORTER"))),
		Endpoint:    strings.TrimSpace(os.Getenv("BIOTOOLS_OTEL_ENDPOINT")),
		Headers:     parseHeaders(os.Getenv("BIOTOOLS_OTEL_HEADERS")),
		Insecure:    getenvBool("BIOTOOLS_OTEL_INSECURE", true),
		Sampler:     strings.ToLower(strings.TrimSpace(os.Getenv("BIOTOOLS_OTEL_SAMPLER"))),
		Ratio:       getenvFloat("BIOTOOLS_OTEL_SAMPLER_RATIO", 1.0),
		Environment: strings.TrimSpace(os.Getenv("BIOTOOLS_ENVIRONMENT")),
	}
}

var (
	initOnce   sync.Once
	shutdownFn func(context.Context) error
	initErr    error
)

// InitTracingFromEnv installs the global tracer provider once per process.
// The returned function flushes and stops the exporter.
func InitTracingFromEnv(service string) (func(context.Context) error, error) {
	initOnce.Do(func() {
		shutdownFn, initErr = InitTracing(context.Background(), service, TracingConfigFromEnv())
	})
	return shutdownFn, initErr
}

// InitTracing installs a tracer provider built from cfg.
func InitTracing(ctx context.Context, service string, cfg TracingConfig) (func(context.Context) error, error) {
	nop := func(context.Context) error { return nil }
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return nop, nil
	}

	exp, err := buildExporter(ctx, cfg)
	if err != nil {
		return nop, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(service),
			attribute.String("biotools.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(buildSampler(cfg)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func buildExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp", "otlpgrpc", "grpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{})))
		}
		return otlptracegrpc.New(ctx, opts...)
	case "otlphttp", "http":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:4318"
		}
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(endpoint)}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		// stdout goes to stderr so it never mixes with MCP stdio traffic.
		return stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
	}
}

func buildSampler(cfg TracingConfig) sdktrace.Sampler {
	switch cfg.Sampler {
	case "always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	case "traceidratio", "ratio":
		ratio := cfg.Ratio
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// parseHeaders reads "k1=v1,k2=v2".
func parseHeaders(raw string) map[string]string {
	out := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

func getenvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func getenvFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return fallback
	}
	return f
}
