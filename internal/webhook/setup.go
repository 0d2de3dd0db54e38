package webhook

import (
	"log/slog"

	"basegraph.app/hookrelay/core/config"
	"basegraph.app/hookrelay/internal/domain"
)

// NewRegistryFromConnectors registers an adapter, under its provider name,
// for every provider that has a secret configured.
func NewRegistryFromConnectors(c config.ConnectorsConfig) (*Registry, error) {
	r := NewRegistry()

	if c.Slack.SigningSecret != "" {
		r.AddWebhook(string(domain.ProviderSlack), NewSlackAdapter(c.Slack.SigningSecret, ConnectorFor(c, domain.ProviderSlack)))
	}
	if c.GitHub.WebhookSecret != "" {
		r.AddWebhook(string(domain.ProviderGitHub), NewGitHubAdapter(c.GitHub.WebhookSecret, ConnectorFor(c, domain.ProviderGitHub)))
	}
	if c.WhatsApp.VerifyToken != "" || c.WhatsApp.AppSecret != "" {
		if c.WhatsApp.AppSecret == "" {
			slog.Warn("whatsapp app secret not set, deliveries will be rejected until it is configured")
		}
		r.AddWebhook(string(domain.ProviderWhatsApp), NewWhatsAppAdapter(c.WhatsApp.AppSecret, c.WhatsApp.VerifyToken, ConnectorFor(c, domain.ProviderWhatsApp)))
	}
	if c.GitLab.WebhookToken != "" {
		adapter, err := NewGitLabAdapter(c.GitLab.WebhookToken, ConnectorFor(c, domain.ProviderGitLab))
		if err != nil {
			return nil, err
		}
		r.AddWebhook(string(domain.ProviderGitLab), adapter)
	}

	slog.Info("webhook adapters registered", "providers", r.Names())
	return r, nil
}

// ConnectorFor returns the bot identity used when normalizing provider events.
func ConnectorFor(c config.ConnectorsConfig, p domain.Provider) domain.ConnectorConfig {
	switch p {
	case domain.ProviderSlack:
		return connectorConfig(c.Slack.BotIdentity, "")
	case domain.ProviderGitHub:
		return connectorConfig(c.GitHub.BotIdentity, c.GitHub.BotName)
	case domain.ProviderWhatsApp:
		return connectorConfig(c.WhatsApp.BotIdentity, "")
	case domain.ProviderGitLab:
		return connectorConfig(c.GitLab.BotIdentity, "")
	}
	return domain.ConnectorConfig{}
}

func connectorConfig(id config.BotIdentity, botName string) domain.ConnectorConfig {
	return domain.ConnectorConfig{
		AppName:      id.AppName,
		AppMentionID: id.AppMentionID,
		AppID:        id.AppID,
		BotName:      botName,
	}
}
