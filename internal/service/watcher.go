package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
	"basegraph.app/hookrelay/internal/watcher"
)

// WatcherService finds tasks that asked to be told about an event.
type WatcherService interface {
	FindWatchedTasks(ctx context.Context, event *domain.WebhookEvent, microfoxID string) ([]model.Task, error)
}

type watcherService struct {
	watchers store.WatcherStore
	tasks    store.TaskStore
	matcher  *watcher.Matcher
}

func NewWatcherService(watchers store.WatcherStore, tasks store.TaskStore, matcher *watcher.Matcher) WatcherService {
	if matcher == nil {
		matcher = watcher.NewMatcher()
	}
	return &watcherService{
		watchers: watchers,
		tasks:    tasks,
		matcher:  matcher,
	}
}

func (s *watcherService) FindWatchedTasks(ctx context.Context, event *domain.WebhookEvent, microfoxID string) ([]model.Task, error) {
	if event == nil {
		return nil, nil
	}

	candidates, err := s.watchers.ListCandidates(ctx, microfoxID, string(event.Provider), event.EventType)
	if err != nil {
		return nil, fmt.Errorf("listing watchers: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(candidates))
	var ids []uuid.UUID
	for _, w := range candidates {
		if _, ok := seen[w.TaskID]; ok {
			continue
		}
		if !s.matcher.Match(ctx, w, event) {
			continue
		}
		seen[w.TaskID] = struct{}{}
		ids = append(ids, w.TaskID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tasks, err := s.tasks.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading watched tasks: %w", err)
	}

	slog.DebugContext(ctx, "watchers matched event",
		"event_id", event.EventID,
		"microfox_id", microfoxID,
		"candidates", len(candidates),
		"tasks", len(tasks))
	return tasks, nil
}
