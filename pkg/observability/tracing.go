package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for documind operations.
	TracerName = "documind"
)

// Span attribute keys
const (
	AttrFileName    = "file_name"
	AttrContentKind = "content_kind"
	AttrOperation   = "operation"
	AttrTransport   = "transport"
	AttrTarget      = "target_seconds"
	AttrNonce       = "nonce"
	AttrErrorCode   = "error_code"
	AttrRetryable   = "retryable"
	AttrAnswerRefs  = "answer_time_refs"
)

// Span names
const (
	SpanUpload = "documind.upload"
	SpanAsk    = "documind.ask"
	SpanSeek   = "documind.seek"
)

// Tracer provides tracing for documind operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// NewTracerWithProvider creates a tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(TracerName),
	}
}

// StartUploadSpan starts a span for an upload.
func (t *Tracer) StartUploadSpan(ctx context.Context, fileName, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanUpload,
		trace.WithAttributes(
			attribute.String(AttrFileName, fileName),
			attribute.String(AttrContentKind, kind),
		),
	)
}

// StartAskSpan starts a span for a question.
func (t *Tracer) StartAskSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanAsk)
}

// StartSeekSpan starts a span for a seek command.
func (t *Tracer) StartSeekSpan(ctx context.Context, target float64, nonce uint64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSeek,
		trace.WithAttributes(
			attribute.Float64(AttrTarget, target),
			attribute.Int64(AttrNonce, int64(nonce)),
		),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorCode string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorCode, errorCode),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// SetAttributes sets attributes on the span.
func (h *SpanHelper) SetAttributes(attrs ...attribute.KeyValue) {
	h.span.SetAttributes(attrs...)
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
