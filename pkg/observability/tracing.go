package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for live session operations.
	TracerName = "penf-live"
)

// Span attribute keys
const (
	AttrSessionID  = "session_id"
	AttrItemID     = "item_id"
	AttrCategory   = "category"
	AttrProvider   = "provider"
	AttrBatchSize  = "batch_size"
	AttrDurationMs = "duration_ms"
	AttrConfidence = "confidence"
	AttrErrorCode  = "error_code"
	AttrRetryable  = "retryable"
)

// Span names
const (
	SpanDetect  = "live.detect"
	SpanDrain   = "live.drain"
	SpanEnhance = "enhance.request"
)

// Tracer provides distributed tracing for live sessions.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartDetectSpan starts a span for scanning one phrase.
func (t *Tracer) StartDetectSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDetect,
		trace.WithAttributes(attribute.String(AttrSessionID, sessionID)),
	)
}

// StartDrainSpan starts a span for a debounce-triggered drain.
func (t *Tracer) StartDrainSpan(ctx context.Context, sessionID string, batchSize int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDrain,
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Int(AttrBatchSize, batchSize),
		),
	)
}

// StartEnhanceSpan starts a span for one enhancement request.
func (t *Tracer) StartEnhanceSpan(ctx context.Context, provider, itemID, category string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanEnhance,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(AttrProvider, provider),
			attribute.String(AttrItemID, itemID),
			attribute.String(AttrCategory, category),
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

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetConfidence records the confidence returned by the service.
func (h *SpanHelper) SetConfidence(confidence float64) {
	h.span.SetAttributes(attribute.Float64(AttrConfidence, confidence))
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

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}
