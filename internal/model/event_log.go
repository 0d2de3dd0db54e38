package model

import (
	"encoding/json"
	"time"
)

type EventLogStatus string

const (
	EventLogStatusUnclassified EventLogStatus = "unclassified"
	EventLogStatusClassified   EventLogStatus = "classified"
	EventLogStatusFailed       EventLogStatus = "failed"
)

// EventLog is the audit row for one canonical event. (ProviderName,
// ProviderEventID) is unique, so redelivered webhooks map to the same row.
type EventLog struct {
	ID                  int64           `json:"id"`
	MicrofoxIDs         []string        `json:"microfox_ids"`
	ProviderName        string          `json:"provider_name"`
	ProviderEventID     string          `json:"provider_event_id"`
	EventType           string          `json:"event_type"`
	Status              EventLogStatus  `json:"status"`
	Content             json.RawMessage `json:"content"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	ClassificationNotes *string         `json:"classification_notes,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
