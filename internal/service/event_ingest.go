package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/store"
)

type EventIngestParams struct {
	Event *domain.WebhookEvent

	// BotID and TeamID override the identity read from the event when
	// resolving connections.
	BotID  string
	TeamID string

	IsTaskImportant *bool
	TraceID         *string
}

type EventIngestResult struct {
	Envelope   *domain.WebhookEnvelope
	DedupeKey  string
	Enqueued   bool
	Duplicated bool
	// Dropped is set when no connection is installed for the event's bot.
	Dropped bool
}

type EventIngestService interface {
	Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error)
}

var ErrInvalidEvent = errors.New("invalid event")

type eventIngestService struct {
	connections store.ConnectionStore
	deduper     queue.Deduper
	queue       queue.Producer
	logger      *slog.Logger
}

func NewEventIngestService(connections store.ConnectionStore, deduper queue.Deduper, queue queue.Producer, logger *slog.Logger) EventIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &eventIngestService{
		connections: connections,
		deduper:     deduper,
		queue:       queue,
		logger:      logger,
	}
}

func (s *eventIngestService) Ingest(ctx context.Context, params EventIngestParams) (*EventIngestResult, error) {
	event := params.Event
	if event == nil || event.EventID == "" || event.Provider == "" {
		return nil, fmt.Errorf("%w: event_id and provider are required", ErrInvalidEvent)
	}
	provider := string(event.Provider)

	botID := params.BotID
	if botID == "" {
		botID = event.Bot.ID
	}
	teamID := params.TeamID
	if teamID == "" {
		teamID = event.ProviderInfo.Team.ID
	}

	conns, err := s.connections.ListByBot(ctx, event.Provider, botID, teamID)
	if err != nil {
		return nil, fmt.Errorf("resolving connections: %w", err)
	}
	if len(conns) == 0 {
		s.logger.InfoContext(ctx, "no connection for event, dropping",
			"event_id", event.EventID,
			"provider", provider,
			"bot_id", botID,
			"team_id", teamID)
		return &EventIngestResult{Dropped: true}, nil
	}

	dedupeKey := DedupeKey(event)
	claimed, err := s.deduper.Claim(ctx, dedupeKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		metrics.EventsDeduplicated.WithLabelValues(provider).Inc()
		s.logger.InfoContext(ctx, "duplicate event deduped", "event_id", event.EventID, "dedupe_key", dedupeKey)
		return &EventIngestResult{DedupeKey: dedupeKey, Duplicated: true}, nil
	}

	env := &domain.WebhookEnvelope{
		WebhookEvent:        event,
		MicrofoxConnections: conns,
		Channel:             &event.Channel,
		ReactAccess:         reactAccess(conns),
		IsTaskImportant:     params.IsTaskImportant,
	}

	if err := s.queue.Enqueue(ctx, queue.EventMessage{
		TaskType:  queue.TaskTypeWebhookEnvelope,
		Envelope:  env,
		DedupeKey: dedupeKey,
		TraceID:   params.TraceID,
		Attempt:   1,
	}); err != nil {
		if relErr := s.deduper.Release(ctx, dedupeKey); relErr != nil {
			s.logger.WarnContext(ctx, "failed to release dedupe key", "dedupe_key", dedupeKey, "error", relErr)
		}
		return nil, fmt.Errorf("enqueueing event: %w", err)
	}
	metrics.EventsEnqueued.WithLabelValues(provider).Inc()

	return &EventIngestResult{
		Envelope:  env,
		DedupeKey: dedupeKey,
		Enqueued:  true,
	}, nil
}

// DedupeKey identifies a provider delivery across retries.
func DedupeKey(event *domain.WebhookEvent) string {
	return fmt.Sprintf("%s:%s", event.Provider, event.EventID)
}

func reactAccess(conns []domain.Connection) *bool {
	allowed := false
	for _, c := range conns {
		if c.ReactAccess {
			allowed = true
			break
		}
	}
	return &allowed
}
