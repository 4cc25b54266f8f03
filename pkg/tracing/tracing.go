// Package tracing wraps the OpenTelemetry SDK into the span helpers the
// pump uses to trace each batch's trip from source to sink, with nested
// spans for its stages.
// Adapted from the teacher's tracing package, trimmed of its adaptive
// sampler and on-demand controller -- those manage sampling decisions
// across a long-running service's traffic, which has no analogue in a
// one-shot CLI run traced with an always-on (or always-off) sampler.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "tableflow"

// Config selects the sampling behavior for a run.
type Config struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// DefaultConfig disables tracing; callers opt in explicitly.
func DefaultConfig() Config {
	return Config{Enabled: false, SampleRate: 1.0}
}

// NewProvider builds a TracerProvider for cfg. When disabled it returns a
// provider sampling nothing, so spans are cheap no-ops rather than requiring
// every call site to branch on cfg.Enabled.
func NewProvider(cfg Config) *sdktrace.TracerProvider {
	sampler := sdktrace.NeverSample()
	if cfg.Enabled {
		rate := cfg.SampleRate
		if rate <= 0 {
			rate = 1.0
		}
		sampler = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
}

// tracer is resolved lazily against whatever global TracerProvider is
// installed (otel.SetTracerProvider), matching the teacher's pattern of not
// holding its own provider reference.
func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartBatch opens a span covering one source-to-writer batch.
func StartBatch(ctx context.Context, entity string, size int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "batch.process",
		trace.WithAttributes(
			attribute.String("entity", entity),
			attribute.Int("batch.size", size),
		),
	)
}

// StartStage opens a span covering one pipeline stage (flatten, extract,
// write) within an already-open batch span.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "batch."+stage)
}

// End records err (if any) on span and closes it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
