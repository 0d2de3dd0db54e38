package model

import (
	"time"

	"github.com/google/uuid"
)

// EventWatcher marks future events as continuations of a task. MatchQuery
// maps JSONPath expressions over the original payload to expected values;
// Condition is an optional expression over the flattened canonical event.
type EventWatcher struct {
	ID             int64             `json:"id"`
	TaskID         uuid.UUID         `json:"task_id"`
	MicrofoxID     string            `json:"microfox_id"`
	ProviderName   string            `json:"provider_name"`
	EventType      string            `json:"event_type"`
	MatchQuery     map[string]string `json:"match_query"`
	Condition      string            `json:"condition,omitempty"`
	TeamID         *string           `json:"team_id,omitempty"`
	OrganizationID *string           `json:"organization_id,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}
