package tracing

import (
	"context"

	"letknow-gateway/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NewProvider returns the tracer provider for cfg and a shutdown func.
// When enabled, spans are sampled with the caller's decision (or always, for new traces)
// so trace ids reach logs, attempt rows and stream events. Exporters are registered
// by passing span processors in opts.
func NewProvider(cfg config.TracingConfig, opts ...sdktrace.TracerProviderOption) (trace.TracerProvider, func(context.Context) error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }
	}

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, tp.Shutdown
}
