package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/hookrelay/internal/brain"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/store"
)

// ErrReplayNotFound is returned when an event_replay message names a
// missing event log. It is not worth retrying.
var ErrReplayNotFound = errors.New("replayed event log not found")

type Processor struct {
	orchestrator Orchestrator
	eventLogs    EventLogReader
}

func NewProcessor(orchestrator Orchestrator, eventLogs EventLogReader) *Processor {
	return &Processor{
		orchestrator: orchestrator,
		eventLogs:    eventLogs,
	}
}

func (p *Processor) Process(ctx context.Context, msg queue.Message) ([]brain.OrchestrationOutput, error) {
	var env *domain.WebhookEnvelope
	switch msg.TaskType {
	case queue.TaskTypeWebhookEnvelope:
		env = msg.Envelope
	case queue.TaskTypeEventReplay:
		replayed, err := p.rebuildEnvelope(ctx, *msg.EventLogID)
		if err != nil {
			return nil, err
		}
		env = replayed
	default:
		return nil, fmt.Errorf("unsupported task_type %q", msg.TaskType)
	}

	outputs, err := p.orchestrator.ProcessIncomingEvent(ctx, env)
	if err != nil {
		return outputs, fmt.Errorf("orchestrating event: %w", err)
	}

	newTasks, oldTasks := 0, 0
	for _, out := range outputs {
		if out.IsNewTask && out.Classified {
			newTasks++
		}
		if out.IsOldTask {
			oldTasks++
		}
	}
	slog.InfoContext(ctx, "event orchestrated",
		"branches", len(outputs),
		"new_tasks", newTasks,
		"old_tasks", oldTasks)

	return outputs, nil
}

type storedMetadata struct {
	Channel         *domain.Channel     `json:"channel,omitempty"`
	ReactAccess     *bool               `json:"react_access,omitempty"`
	IsTaskImportant *bool               `json:"is_task_important,omitempty"`
	Connections     []domain.Connection `json:"microfox_connections"`
}

// rebuildEnvelope restores the envelope an event log was written from.
func (p *Processor) rebuildEnvelope(ctx context.Context, eventLogID int64) (*domain.WebhookEnvelope, error) {
	eventLog, err := p.eventLogs.GetByID(ctx, eventLogID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrReplayNotFound, eventLogID)
		}
		return nil, fmt.Errorf("loading event log %d: %w", eventLogID, err)
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(eventLog.Content, &event); err != nil {
		return nil, fmt.Errorf("decoding stored event %d: %w", eventLogID, err)
	}

	var meta storedMetadata
	if len(eventLog.Metadata) > 0 {
		if err := json.Unmarshal(eventLog.Metadata, &meta); err != nil {
			return nil, fmt.Errorf("decoding stored metadata %d: %w", eventLogID, err)
		}
	}

	return &domain.WebhookEnvelope{
		WebhookEvent:        &event,
		MicrofoxConnections: meta.Connections,
		Channel:             meta.Channel,
		ReactAccess:         meta.ReactAccess,
		IsTaskImportant:     meta.IsTaskImportant,
	}, nil
}
