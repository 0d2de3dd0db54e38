package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/internal/queue"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer  Consumer
	processor MessageHandler
	cfg       Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, processor MessageHandler, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "hookrelay.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.HandleMessage(ctx, msg)
	}

	return nil
}

// HandleMessage processes msg and settles it: ack on success, requeue or
// DLQ on failure. Exported so the reclaimer settles messages the same way.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	ctx = messageContext(ctx, msg)

	sc := logger.ContinueTrace(ctx, msg.TraceID, "worker.process_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("hookrelay.task_type", string(msg.TaskType)),
			attribute.Int("hookrelay.attempt", msg.Attempt),
		))
	defer sc.End()
	ctx = sc.Context()

	if err := w.processMessageSafe(ctx, msg); err != nil {
		sc.Fail(err)
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", msg.Attempt)
		return w.handleFailedMessage(ctx, msg, err)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will pick it up again; orchestration skips events
		// already classified.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
		return err
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	slog.InfoContext(ctx, "processing message",
		"task_type", msg.TaskType,
		"attempt", msg.Attempt)

	_, err = w.processor.Process(ctx, msg)
	return err
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) error {
	if errors.Is(err, ErrReplayNotFound) {
		slog.WarnContext(ctx, "dropping replay of missing event log", "error", err)
		return w.consumer.Ack(ctx, msg)
	}

	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
			return dlqErr
		}
		return nil
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
		return requeueErr
	}
	return nil
}

func messageContext(ctx context.Context, msg queue.Message) context.Context {
	fields := logger.LogFields{
		MessageID:  logger.Ptr(msg.ID),
		EventLogID: msg.EventLogID,
	}
	if msg.EventID != "" {
		fields.EventID = logger.Ptr(msg.EventID)
	}
	if msg.Provider != "" {
		fields.Provider = logger.Ptr(msg.Provider)
	}
	return logger.WithLogFields(ctx, fields)
}
