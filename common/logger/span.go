package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "basegraph.app/hookrelay"

// Span is a started span whose attributes mirror the LogFields of the
// context it was started from, so traces and logs carry the same event ids.
type Span struct {
	ctx  context.Context
	span trace.Span
}

// StartSpan starts a child span of ctx tagged with ctx's LogFields.
//
//	sc := logger.StartSpan(ctx, "brain.orchestrate_connection")
//	defer sc.End()
//	ctx = sc.Context()
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) *Span {
	opts = append(opts, trace.WithAttributes(SpanAttributes(GetLogFields(ctx))...))
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &Span{ctx: ctx, span: span}
}

// ContinueTrace starts a span in the trace the webhook request began, using
// the trace id stored on the stream message. An empty or malformed id starts
// a new trace.
func ContinueTrace(ctx context.Context, traceID, name string, opts ...trace.SpanStartOption) *Span {
	if remote, ok := remoteParent(traceID); ok {
		ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
		opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
	}
	return StartSpan(ctx, name, opts...)
}

func remoteParent(traceID string) (trace.SpanContext, bool) {
	if traceID == "" {
		return trace.SpanContext{}, false
	}
	id, err := trace.TraceIDFromHex(traceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    id,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}), true
}

// Annotate merges fields into ctx like WithLogFields and also records them
// on the span active in ctx.
func Annotate(ctx context.Context, fields LogFields) context.Context {
	if attrs := SpanAttributes(fields); len(attrs) > 0 {
		trace.SpanFromContext(ctx).SetAttributes(attrs...)
	}
	return WithLogFields(ctx, fields)
}

// SpanAttributes converts the set fields to hookrelay.* span attributes.
func SpanAttributes(fields LogFields) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	add := func(key string, v *string) {
		if v != nil && *v != "" {
			attrs = append(attrs, attribute.String(key, *v))
		}
	}
	add("hookrelay.event_id", fields.EventID)
	add("hookrelay.provider", fields.Provider)
	add("hookrelay.microfox_id", fields.MicrofoxID)
	add("hookrelay.task_id", fields.TaskID)
	add("messaging.message.id", fields.MessageID)
	if fields.EventLogID != nil {
		attrs = append(attrs, attribute.Int64("hookrelay.event_log_id", *fields.EventLogID))
	}
	return attrs
}

func (s *Span) Context() context.Context {
	return s.ctx
}

func (s *Span) End() {
	s.span.End()
}

// Fail records err on the span and marks it as errored. A nil err is ignored.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}
