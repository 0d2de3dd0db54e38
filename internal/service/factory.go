package service

import (
	"log/slog"

	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/store"
	"basegraph.app/hookrelay/internal/watcher"
)

type Services struct {
	stores   *store.Stores
	producer queue.Producer
	deduper  queue.Deduper
	matcher  *watcher.Matcher
	logger   *slog.Logger
}

func NewServices(stores *store.Stores, producer queue.Producer, deduper queue.Deduper, logger *slog.Logger) *Services {
	return &Services{
		stores:   stores,
		producer: producer,
		deduper:  deduper,
		matcher:  watcher.NewMatcher(),
		logger:   logger,
	}
}

func (s *Services) EventIngest() EventIngestService {
	return NewEventIngestService(s.stores.Connections(), s.deduper, s.producer, s.logger)
}

func (s *Services) Watchers() WatcherService {
	return NewWatcherService(s.stores.Watchers(), s.stores.Tasks(), s.matcher)
}
