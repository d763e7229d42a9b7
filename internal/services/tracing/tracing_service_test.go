package tracing

import (
	"context"
	"errors"
	"testing"

	"letknow-gateway/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewService_DefaultsToGlobalProvider(t *testing.T) {
	service := NewService("letknow-gateway", nil)
	assert.NotNil(t, service.tracer)
}

func TestService_StartSpan(t *testing.T) {
	service := NewService("letknow-gateway", noop.NewTracerProvider())

	ctx, span := service.StartSpan(context.Background(), "checkout.submit", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	assert.Equal(t, span, trace.SpanFromContext(ctx))
}

func TestService_StartProviderSpan_KeepsParentTrace(t *testing.T) {
	service := NewService("letknow-gateway", noop.NewTracerProvider())
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), parent)

	childCtx, span := service.StartProviderSpan(ctx, "refid_1")
	defer span.End()

	assert.Equal(t, parent.TraceID().String(), ExtractTraceID(childCtx))
}

func TestRecordError(t *testing.T) {
	_, span := noop.NewTracerProvider().Tracer("test").Start(context.Background(), "span")
	defer span.End()

	require.NotPanics(t, func() {
		RecordError(span, errors.New("provider down"))
		RecordError(span, nil)
	})
}

func TestExtractTraceID_NoSpan(t *testing.T) {
	assert.Equal(t, "", ExtractTraceID(context.Background()))
}

func TestNewProvider_DisabledIsNoop(t *testing.T) {
	provider, shutdown := NewProvider(config.TracingConfig{Enabled: false})
	defer shutdown(context.Background())

	ctx, span := NewService("letknow-gateway", provider).StartSpan(context.Background(), "checkout")
	defer span.End()

	assert.False(t, span.IsRecording())
	assert.Equal(t, "", ExtractTraceID(ctx))
}

func TestNewProvider_EnabledAssignsTraceIDs(t *testing.T) {
	provider, shutdown := NewProvider(config.TracingConfig{Enabled: true, ServiceName: "letknow-gateway"})
	defer func() {
		require.NoError(t, shutdown(context.Background()))
	}()

	ctx, span := NewService("letknow-gateway", provider).StartSpan(context.Background(), "checkout")
	defer span.End()

	assert.True(t, span.IsRecording())
	assert.Len(t, ExtractTraceID(ctx), 32)
}
