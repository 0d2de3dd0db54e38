package domain

import "encoding/json"

// Connection is one installed bot instance (a microfox) within a tenant's
// provider workspace. One inbound event can fan out to several.
type Connection struct {
	MicrofoxBotID string          `json:"microfox_bot_id"`
	Provider      Provider        `json:"provider"`
	BotID         string          `json:"bot_id"`
	TeamID        string          `json:"team_id,omitempty"`
	ReactAccess   bool            `json:"react_access,omitempty"`
	Config        json.RawMessage `json:"config,omitempty"`
}

// WebhookEnvelope is what the ingest server puts on the stream and what the
// orchestrator consumes.
type WebhookEnvelope struct {
	WebhookEvent        *WebhookEvent `json:"webhook_event"`
	MicrofoxConnections []Connection  `json:"microfox_connections"`
	Channel             *Channel      `json:"channel,omitempty"`
	ReactAccess         *bool         `json:"react_access,omitempty"`
	// IsTaskImportant overrides the importance gate when set upstream.
	IsTaskImportant *bool `json:"is_task_important,omitempty"`
}

// Valid reports whether the envelope carries enough to orchestrate.
func (e *WebhookEnvelope) Valid() bool {
	return e != nil && e.WebhookEvent != nil && len(e.MicrofoxConnections) > 0
}

// ConnectorConfig is the per-provider identity used while normalizing.
type ConnectorConfig struct {
	AppName      string
	AppMentionID string
	AppID        string
	// BotName is the literal mention handle on providers without user ids in
	// mentions (GitHub "@microfox-ai").
	BotName string
}
