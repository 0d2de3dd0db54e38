package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired, TaskStateCompleted,
		TaskStateCanceled, TaskStateFailed, TaskStateRejected, TaskStateAuthRequired, TaskStateUnknown:
		return true
	}
	return false
}

type TaskType string

const (
	TaskTypeDefault   TaskType = "default"
	TaskTypeWatcher   TaskType = "watcher"
	TaskTypeScheduled TaskType = "scheduled"
	TaskTypeStale     TaskType = "stale"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeDefault, TaskTypeWatcher, TaskTypeScheduled, TaskTypeStale:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

type TaskStatus struct {
	State TaskState `json:"state"`
}

// Task is created from a new_task classification. This service never
// deletes tasks.
type Task struct {
	ID                uuid.UUID       `json:"id"`
	ContextID         uuid.UUID       `json:"contextId"`
	MicrofoxID        string          `json:"microfox_id"`
	Name              string          `json:"name"`
	AIDescription     string          `json:"ai_description"`
	TaskType          TaskType        `json:"task_type"`
	Status            TaskStatus      `json:"status"`
	Priority          TaskPriority    `json:"priority"`
	ProviderName      string          `json:"provider_name"`
	TriggeringEventID *int64          `json:"triggering_event_id,omitempty"`
	AuthorizedUsers   []string        `json:"authorized_users,omitempty"`
	Input             json.RawMessage `json:"input,omitempty"`
	Output            json.RawMessage `json:"output,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	ScheduledFor      *time.Time      `json:"scheduled_for,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
