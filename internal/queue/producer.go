package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/hookrelay/internal/domain"
)

type EventMessage struct {
	TaskType   TaskType
	Envelope   *domain.WebhookEnvelope
	EventLogID *int64
	DedupeKey  string
	TraceID    *string
	Attempt    int
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	fields, err := eventFields(msg)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued event",
		"task_type", fields[fieldTaskType],
		"event_id", fields[fieldEventID],
		"dedupe_key", msg.DedupeKey,
		"attempt", fields[fieldAttempt])
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func eventFields(msg EventMessage) (map[string]any, error) {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	taskType := msg.TaskType
	if taskType == "" {
		taskType = TaskTypeWebhookEnvelope
	}

	fields := map[string]any{
		fieldTaskType: string(taskType),
		fieldAttempt:  attempt,
	}

	switch taskType {
	case TaskTypeWebhookEnvelope:
		if msg.Envelope == nil || msg.Envelope.WebhookEvent == nil {
			return nil, fmt.Errorf("enqueue event: envelope without webhook_event")
		}
		raw, err := json.Marshal(msg.Envelope)
		if err != nil {
			return nil, fmt.Errorf("encoding envelope: %w", err)
		}
		fields[fieldEnvelope] = string(raw)
		fields[fieldEventID] = msg.Envelope.WebhookEvent.EventID
		fields[fieldProvider] = string(msg.Envelope.WebhookEvent.Provider)
	case TaskTypeEventReplay:
		if msg.EventLogID == nil {
			return nil, fmt.Errorf("enqueue event: replay without event_log_id")
		}
		fields[fieldEventLogID] = *msg.EventLogID
	default:
		return nil, fmt.Errorf("enqueue event: unknown task_type %q", taskType)
	}

	if msg.DedupeKey != "" {
		fields[fieldDedupeKey] = msg.DedupeKey
	}
	if msg.TraceID != nil && *msg.TraceID != "" {
		fields[fieldTraceID] = *msg.TraceID
	}
	return fields, nil
}
