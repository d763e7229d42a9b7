package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrReferenceID  = attribute.Key("letknow.reference_id")
	AttrStorefrontID = attribute.Key("letknow.storefront_id")
	AttrResult       = attribute.Key("letknow.result")
	AttrErrorCode    = attribute.Key("letknow.error_code")
	AttrReplayed     = attribute.Key("letknow.replayed")
)

// Service provides OpenTelemetry tracing functionality
type Service struct {
	tracer trace.Tracer
}

// NewService creates a tracing service on provider, or on the global provider when nil.
func NewService(serviceName string, provider trace.TracerProvider) *Service {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Service{
		tracer: provider.Tracer(serviceName),
	}
}

func (s *Service) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, opts...)
}

// StartProviderSpan starts a client span around an outbound LetKnow call.
func (s *Service) StartProviderSpan(ctx context.Context, referenceID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "letknow.get_deposit_address",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrReferenceID.String(referenceID)),
	)
}

// RecordError records an error on a span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// ExtractTraceID returns the trace id of the span in ctx, or "" without a valid span.
func ExtractTraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}
