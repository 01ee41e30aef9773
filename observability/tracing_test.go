package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken, x=1,=y, z= ")
	if len(got) != 2 || got["api-key"] != "abc" || got["x"] != "1" {
		t.Errorf("unexpected headers: %v", got)
	}
	if len(parseHeaders("")) != 0 {
		t.Error("expected no headers for empty input")
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("BIOTOOLS_OTEL_EXPORTER", " OTLPHTTP ")
	t.Setenv("BIOTOOLS_OTEL_ENDPOINT", "http://collector:4318")
	t.Setenv("BIOTOOLS_OTEL_INSECURE", "no")
	t.Setenv("BIOTOOLS_OTEL_SAMPLER_RATIO", "0.25")

	cfg := TracingConfigFromEnv()
	if cfg.Exporter != "otlphttp" || cfg.Endpoint != "http://collector:4318" {
		t.Errorf("unexpected exporter config: %+v", cfg)
	}
	if cfg.Insecure {
		t.Error("expected insecure=false")
	}
	if cfg.Ratio != 0.25 {
		t.Errorf("expected ratio 0.25, got %v", cfg.Ratio)
	}
}

func TestInitTracingNone(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "biotools-test", TracingConfig{Exporter: "none"})
	if err != nil {
		t.Fatalf("InitTracing failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}

	_, span := StartSpan(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Error("expected non-recording span from noop provider")
	}
	span.End()
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	_, ok := StartSpan(context.Background(), "ok", attribute.String("tool", "blastp"))
	EndSpan(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	EndSpan(failed, errors.New("exit status 2"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("expected first span without error status")
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "exit status 2" {
		t.Errorf("unexpected status: %+v", spans[1].Status())
	}
}

func TestBuildSamplerClampsRatio(t *testing.T) {
	for _, cfg := range []TracingConfig{
		{Sampler: "ratio", Ratio: 5},
		{Sampler: "ratio", Ratio: -1},
		{Sampler: "always_off"},
		{},
	} {
		if buildSampler(cfg) == nil {
			t.Errorf("nil sampler for %+v", cfg)
		}
	}
}
