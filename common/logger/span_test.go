package logger_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"basegraph.app/hookrelay/common/logger"
)

var _ = Describe("Span", func() {
	var recorder *tracetest.SpanRecorder

	BeforeEach(func() {
		recorder = tracetest.NewSpanRecorder()
		previous := otel.GetTracerProvider()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
		DeferCleanup(func() { otel.SetTracerProvider(previous) })
	})

	attrs := func(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
		out := map[attribute.Key]attribute.Value{}
		for _, kv := range s.Attributes() {
			out[kv.Key] = kv.Value
		}
		return out
	}

	It("tags the span with the event fields of the context", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{
			EventID:    logger.Ptr("slack-Ev1"),
			Provider:   logger.Ptr("slack"),
			MicrofoxID: logger.Ptr("bot-a"),
			EventLogID: logger.Ptr(int64(42)),
		})

		sc := logger.StartSpan(ctx, "brain.orchestrate_connection")
		sc.End()

		spans := recorder.Ended()
		Expect(spans).To(HaveLen(1))
		got := attrs(spans[0])
		Expect(got["hookrelay.event_id"].AsString()).To(Equal("slack-Ev1"))
		Expect(got["hookrelay.provider"].AsString()).To(Equal("slack"))
		Expect(got["hookrelay.microfox_id"].AsString()).To(Equal("bot-a"))
		Expect(got["hookrelay.event_log_id"].AsInt64()).To(Equal(int64(42)))
		Expect(got).NotTo(HaveKey(attribute.Key("hookrelay.task_id")))
	})

	It("adds annotated fields to the running span and the log context", func() {
		sc := logger.StartSpan(context.Background(), "brain.orchestrate_connection")
		ctx := logger.Annotate(sc.Context(), logger.LogFields{TaskID: logger.Ptr("0190c7a2")})
		sc.End()

		Expect(*logger.GetLogFields(ctx).TaskID).To(Equal("0190c7a2"))
		Expect(attrs(recorder.Ended()[0])["hookrelay.task_id"].AsString()).To(Equal("0190c7a2"))
	})

	It("continues the trace carried on a stream message", func() {
		traceID := "4bf92f3577b34da6a3ce929d0e0e4736"

		sc := logger.ContinueTrace(context.Background(), traceID, "worker.process_message")
		sc.End()

		span := recorder.Ended()[0]
		Expect(span.SpanContext().TraceID().String()).To(Equal(traceID))
		Expect(span.Links()).To(HaveLen(1))
	})

	It("starts a new trace when the stored trace id is malformed", func() {
		sc := logger.ContinueTrace(context.Background(), "not-a-trace", "worker.process_message")
		sc.End()

		span := recorder.Ended()[0]
		Expect(span.SpanContext().TraceID().IsValid()).To(BeTrue())
		Expect(span.Links()).To(BeEmpty())
	})

	It("marks failed spans as errors", func() {
		sc := logger.StartSpan(context.Background(), "worker.process_message")
		sc.Fail(nil)
		sc.Fail(errors.New("persisting task: connection reset"))
		sc.End()

		span := recorder.Ended()[0]
		Expect(span.Status().Code).To(Equal(codes.Error))
		Expect(span.Status().Description).To(ContainSubstring("connection reset"))
		Expect(span.Events()).To(HaveLen(1))
	})
})
