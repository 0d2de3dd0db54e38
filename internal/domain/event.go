package domain

import (
	"encoding/json"
	"fmt"
)

// Provider is the upstream system a webhook came from.
type Provider string

const (
	ProviderSlack    Provider = "slack"
	ProviderGitHub   Provider = "github"
	ProviderWhatsApp Provider = "whatsapp"
	ProviderGitLab   Provider = "gitlab"
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderSlack, ProviderGitHub, ProviderWhatsApp, ProviderGitLab:
		return p, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// BaseType is the coarse category used for event-type filtering.
type BaseType string

const (
	BaseTypeMessage BaseType = "message"
	BaseTypeOpened  BaseType = "opened"
)

type ChannelType string

const (
	ChannelDirectMessage  ChannelType = "direct_message"
	ChannelUserToUser     ChannelType = "user_to_user"
	ChannelPublicChannel  ChannelType = "public_channel"
	ChannelPrivateChannel ChannelType = "private_channel"
	ChannelIssue          ChannelType = "issue"
	ChannelPullRequest    ChannelType = "pull_request"
	ChannelMergeRequest   ChannelType = "merge_request"
)

// IsPrivateConversation reports whether only the sender and the bot can see the channel.
func (t ChannelType) IsPrivateConversation() bool {
	return t == ChannelDirectMessage || t == ChannelUserToUser
}

// WebhookEvent is the provider-agnostic form of one trackable inbound event.
// EventID is derived from provider-native identifiers, so a redelivered
// webhook normalizes to the same EventID.
type WebhookEvent struct {
	EventID         string          `json:"event_id"`
	BaseType        BaseType        `json:"base_type"`
	EventType       string          `json:"event_type"`
	Timestamp       float64         `json:"timestamp"`
	Text            string          `json:"text"`
	CleanText       string          `json:"clean_text"`
	Provider        Provider        `json:"provider"`
	Bot             Bot             `json:"bot"`
	ProviderInfo    ProviderInfo    `json:"provider_info"`
	Sender          Sender          `json:"sender"`
	Channel         Channel         `json:"channel"`
	Event           EventDetail     `json:"event"`
	OriginalPayload json.RawMessage `json:"original_payload"`
}

type Bot struct {
	ID             string `json:"id"`
	AppID          string `json:"app_id"`
	IsBotMentioned bool   `json:"is_bot_mentioned"`
	BotName        string `json:"bot_name,omitempty"`
}

type ProviderInfo struct {
	Team Ref `json:"team"`
	Org  Ref `json:"org"`
}

type Ref struct {
	ID string `json:"id"`
}

type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type Channel struct {
	ID   string      `json:"id"`
	Type ChannelType `json:"type"`
}

// EventDetail keeps the provider-native sub-payload for threading.
type EventDetail struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Subtype  string `json:"subtype,omitempty"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ParentTS string `json:"parent_ts,omitempty"`
	TaskID   string `json:"task_id,omitempty"`
}

// IsTrackableMessage is false for placeholder events such as WhatsApp status callbacks.
func (e *WebhookEvent) IsTrackableMessage() bool {
	return e != nil && e.Text != ""
}
