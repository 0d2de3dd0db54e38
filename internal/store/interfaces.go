package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a task for the same triggering event
	// and bot was already created
	ErrAlreadyExists = errors.New("already exists")
)

type LogEventInput struct {
	MicrofoxIDs     []string
	ProviderName    string
	ProviderEventID string
	EventType       string
	Content         json.RawMessage
	Metadata        json.RawMessage
}

// EventLogStore is the audit log of canonical events
type EventLogStore interface {
	// LogEvent inserts the event or returns the existing row for the same
	// provider event; created reports which.
	LogEvent(ctx context.Context, in LogEventInput) (log *model.EventLog, created bool, err error)
	GetByID(ctx context.Context, id int64) (*model.EventLog, error)
	MarkClassified(ctx context.Context, id int64, status model.EventLogStatus, notes string) error
}

type CreateTaskInput struct {
	MicrofoxID        string
	Name              string
	AIDescription     string
	TaskType          model.TaskType
	Priority          model.TaskPriority
	ProviderName      string
	TriggeringEventID *int64
	AuthorizedUsers   []string
	Input             json.RawMessage
	Metadata          json.RawMessage
	ScheduledFor      *time.Time
	ExpiresAt         *time.Time
	// ContextID groups tasks from one conversation; a new one is minted when nil.
	ContextID *uuid.UUID
}

// TaskStore defines the contract for task data access
type TaskStore interface {
	// Create returns ErrAlreadyExists when a task with the same triggering
	// event and bot exists.
	Create(ctx context.Context, in CreateTaskInput) (*model.Task, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Task, error)
	GetByTriggeringEvent(ctx context.Context, eventLogID int64, microfoxID string) (*model.Task, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Task, error)
	UpdateState(ctx context.Context, id uuid.UUID, state model.TaskState) error
	ListRecent(ctx context.Context, microfoxID, provider string, limit int32) ([]model.Task, error)
}

type CreateEventWatcherInput struct {
	TaskID         uuid.UUID
	MicrofoxID     string
	ProviderName   string
	EventType      string
	MatchQuery     map[string]string
	Condition      string
	TeamID         *string
	OrganizationID *string
	ExpiresAt      *time.Time
}

// WatcherStore defines the contract for event watcher data access
type WatcherStore interface {
	Create(ctx context.Context, in CreateEventWatcherInput) (*model.EventWatcher, error)
	// ListCandidates returns unexpired watchers for the bot, provider and
	// event type ("*" watchers match any type). Match queries are evaluated
	// by the caller.
	ListCandidates(ctx context.Context, microfoxID, provider, eventType string) ([]model.EventWatcher, error)
}

// ConnectionStore resolves which installed bots receive an event
type ConnectionStore interface {
	ListByBot(ctx context.Context, provider domain.Provider, botID, teamID string) ([]domain.Connection, error)
	Upsert(ctx context.Context, conn domain.Connection) error
}

type LLMEvalStore interface {
	Create(ctx context.Context, eval *model.LLMEval) (*model.LLMEval, error)
}
