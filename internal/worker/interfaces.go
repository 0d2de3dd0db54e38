package worker

import (
	"context"

	"github.com/redis/go-redis/v9"

	"basegraph.app/hookrelay/internal/brain"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Orchestrator abstracts the task orchestrator for testability.
type Orchestrator interface {
	ProcessIncomingEvent(ctx context.Context, env *domain.WebhookEnvelope) ([]brain.OrchestrationOutput, error)
}

// EventLogReader loads stored events for replay.
type EventLogReader interface {
	GetByID(ctx context.Context, id int64) (*model.EventLog, error)
}

// MessageHandler turns one stream message into orchestration outputs.
type MessageHandler interface {
	Process(ctx context.Context, msg queue.Message) ([]brain.OrchestrationOutput, error)
}

// StreamClaimer is the part of *redis.Client the reclaimer uses.
type StreamClaimer interface {
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
}
