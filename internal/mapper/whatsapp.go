package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"

	"basegraph.app/hookrelay/internal/domain"
)

const whatsappUnknown = "unknown"

type whatsappPayload struct {
	Object string          `json:"object"`
	Entry  []whatsappEntry `json:"entry"`
}

type whatsappEntry struct {
	ID      string           `json:"id"`
	Changes []whatsappChange `json:"changes"`
}

type whatsappChange struct {
	Field string        `json:"field"`
	Value whatsappValue `json:"value"`
}

type whatsappValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         whatsappMetadata  `json:"metadata"`
	Contacts         []whatsappContact `json:"contacts"`
	Messages         []whatsappMessage `json:"messages"`
}

type whatsappMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type whatsappContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type whatsappMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

type WhatsAppNormalizer struct{}

func NewWhatsAppNormalizer() *WhatsAppNormalizer {
	return &WhatsAppNormalizer{}
}

func (n *WhatsAppNormalizer) Provider() domain.Provider {
	return domain.ProviderWhatsApp
}

// Normalize reads entry[0].changes[0]. Callbacks without a message (status
// updates) produce a placeholder event with empty text rather than an error.
func (n *WhatsAppNormalizer) Normalize(_ string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error) {
	var payload whatsappPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decoding whatsapp payload: %w", err)
	}

	var value whatsappValue
	if len(payload.Entry) > 0 && len(payload.Entry[0].Changes) > 0 {
		value = payload.Entry[0].Changes[0].Value
	}

	msg := whatsappMessage{ID: whatsappUnknown, From: whatsappUnknown, Type: "text", Timestamp: "0"}
	if len(value.Messages) > 0 {
		msg = value.Messages[0]
	}
	if msg.Type == "" {
		msg.Type = "text"
	}

	var senderName string
	if len(value.Contacts) > 0 {
		senderName = value.Contacts[0].Profile.Name
	}

	ts, _ := strconv.ParseFloat(msg.Timestamp, 64)
	text := msg.Text.Body

	return &domain.WebhookEvent{
		EventID:   "whatsapp-" + msg.ID,
		BaseType:  domain.BaseTypeMessage,
		EventType: "message." + msg.Type,
		Timestamp: ts,
		Text:      text,
		CleanText: text,
		Provider:  domain.ProviderWhatsApp,
		Bot: domain.Bot{
			ID:      value.Metadata.PhoneNumberID,
			AppID:   cfg.AppID,
			BotName: cfg.AppName,
		},
		Sender: domain.Sender{
			ID:   msg.From,
			Name: senderName,
		},
		Channel: domain.Channel{
			ID:   msg.From,
			Type: domain.ChannelDirectMessage,
		},
		Event: domain.EventDetail{
			ID:   msg.ID,
			Type: msg.Type,
			Text: text,
			TS:   msg.Timestamp,
		},
		OriginalPayload: rawCopy(raw),
	}, nil
}
