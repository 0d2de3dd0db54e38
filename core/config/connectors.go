package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConnectorsConfig holds the per-provider bot identity and webhook secrets.
type ConnectorsConfig struct {
	Slack    SlackConnector    `yaml:"slack"`
	GitHub   GitHubConnector   `yaml:"github"`
	WhatsApp WhatsAppConnector `yaml:"whatsapp"`
	GitLab   GitLabConnector   `yaml:"gitlab"`
}

// BotIdentity is how the bot is named and mentioned on a provider.
type BotIdentity struct {
	AppName      string `yaml:"app_name"`
	AppMentionID string `yaml:"app_mention_id"`
	AppID        string `yaml:"app_id"`
}

type SlackConnector struct {
	BotIdentity   `yaml:",inline"`
	SigningSecret string `yaml:"signing_secret"`
}

type GitHubConnector struct {
	BotIdentity   `yaml:",inline"`
	WebhookSecret string `yaml:"webhook_secret"`
	BotName       string `yaml:"bot_name"`
}

type WhatsAppConnector struct {
	BotIdentity `yaml:",inline"`
	AppSecret   string `yaml:"app_secret"`
	VerifyToken string `yaml:"verify_token"`
}

type GitLabConnector struct {
	BotIdentity  `yaml:",inline"`
	WebhookToken string `yaml:"webhook_token"`
}

// LoadConnectors reads a YAML connectors file. An empty path yields an empty config.
func LoadConnectors(path string) (ConnectorsConfig, error) {
	var cfg ConnectorsConfig
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading connectors file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing connectors file: %w", err)
	}
	return cfg, nil
}

func (c ConnectorsConfig) withEnvOverrides() ConnectorsConfig {
	c.Slack.SigningSecret = getEnv("SLACK_SIGNING_SECRET", c.Slack.SigningSecret)
	c.Slack.AppName = getEnv("SLACK_APP_NAME", c.Slack.AppName)
	c.Slack.AppMentionID = getEnv("SLACK_APP_MENTION_ID", c.Slack.AppMentionID)
	c.Slack.AppID = getEnv("SLACK_APP_ID", c.Slack.AppID)

	c.GitHub.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", c.GitHub.WebhookSecret)
	c.GitHub.AppName = getEnv("GITHUB_APP_NAME", c.GitHub.AppName)
	c.GitHub.AppMentionID = getEnv("GITHUB_APP_MENTION_ID", c.GitHub.AppMentionID)
	c.GitHub.AppID = getEnv("GITHUB_APP_ID", c.GitHub.AppID)
	c.GitHub.BotName = getEnv("GITHUB_BOT_NAME", c.GitHub.BotName)
	if c.GitHub.BotName == "" {
		c.GitHub.BotName = "microfox-ai"
	}

	c.WhatsApp.AppSecret = getEnv("WHATSAPP_APP_SECRET", c.WhatsApp.AppSecret)
	c.WhatsApp.VerifyToken = getEnv("WHATSAPP_VERIFY_TOKEN", c.WhatsApp.VerifyToken)
	c.WhatsApp.AppName = getEnv("WHATSAPP_APP_NAME", c.WhatsApp.AppName)
	c.WhatsApp.AppID = getEnv("WHATSAPP_APP_ID", c.WhatsApp.AppID)

	c.GitLab.WebhookToken = getEnv("GITLAB_WEBHOOK_TOKEN", c.GitLab.WebhookToken)
	c.GitLab.AppName = getEnv("GITLAB_APP_NAME", c.GitLab.AppName)
	c.GitLab.AppMentionID = getEnv("GITLAB_APP_MENTION_ID", c.GitLab.AppMentionID)
	c.GitLab.AppID = getEnv("GITLAB_APP_ID", c.GitLab.AppID)

	return c
}
