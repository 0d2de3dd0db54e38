package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack/slackevents"

	"basegraph.app/hookrelay/internal/domain"
)

var slackMessageEvents = map[string]bool{
	"app_mention":      true,
	"message":          true,
	"message.im":       true,
	"message.channels": true,
	"message.groups":   true,
	"message.mpim":     true,
	"message.app_home": true,
}

var slackOpenedEvents = map[string]bool{
	"app_home_opened": true,
}

var slackChannelTypes = map[string]domain.ChannelType{
	"message.im":       domain.ChannelUserToUser,
	"message.app_home": domain.ChannelDirectMessage,
	"message.channels": domain.ChannelPublicChannel,
	"message.groups":   domain.ChannelPrivateChannel,
	"message.mpim":     domain.ChannelPrivateChannel,
}

// Events API channel_type values to subscription suffixes.
var slackChannelSuffix = map[string]string{
	"im":       "im",
	"channel":  "channels",
	"group":    "groups",
	"mpim":     "mpim",
	"app_home": "app_home",
}

// authorizations is not exposed on slackevents' callback event.
type slackAuthorizations struct {
	Authorizations []slackAuthorization `json:"authorizations"`
}

type slackAuthorization struct {
	UserID string `json:"user_id"`
	TeamID string `json:"team_id"`
	IsBot  bool   `json:"is_bot"`
}

// slackInner is the subset of the typed inner events the canonical event
// needs.
type slackInner struct {
	Type        string
	Subtype     string
	User        string
	Text        string
	TS          string
	EventTS     string
	ThreadTS    string
	Channel     string
	ChannelType string
}

func innerFromEvent(inner slackevents.EventsAPIInnerEvent) slackInner {
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		return slackInner{
			Type: ev.Type, Subtype: ev.SubType, User: ev.User, Text: ev.Text,
			TS: ev.TimeStamp, EventTS: ev.EventTimeStamp, ThreadTS: ev.ThreadTimeStamp,
			Channel: ev.Channel, ChannelType: ev.ChannelType,
		}
	case *slackevents.AppMentionEvent:
		return slackInner{
			Type: ev.Type, User: ev.User, Text: ev.Text,
			TS: ev.TimeStamp, EventTS: ev.EventTimeStamp, ThreadTS: ev.ThreadTimeStamp,
			Channel: ev.Channel,
		}
	case *slackevents.AppHomeOpenedEvent:
		return slackInner{
			Type: ev.Type, User: ev.User, EventTS: ev.EventTimeStamp, Channel: ev.Channel,
		}
	}
	return slackInner{Type: inner.Type}
}

type SlackNormalizer struct{}

func NewSlackNormalizer() *SlackNormalizer {
	return &SlackNormalizer{}
}

func (n *SlackNormalizer) Provider() domain.Provider {
	return domain.ProviderSlack
}

func slackEventType(ev slackInner) string {
	if ev.Type != "message" {
		return ev.Type
	}
	if suffix, ok := slackChannelSuffix[ev.ChannelType]; ok {
		return "message." + suffix
	}
	return ev.Type
}

func (n *SlackNormalizer) Normalize(eventType string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error) {
	if !json.Valid(raw) {
		return nil, errors.New("decoding slack payload: invalid JSON")
	}
	parsed, err := slackevents.ParseEvent(json.RawMessage(raw), slackevents.OptionNoVerifyToken())
	if err != nil {
		// slackevents rejects inner types it has no struct for.
		return nil, untracked(domain.ProviderSlack, eventType)
	}
	callback, ok := parsed.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok {
		return nil, untracked(domain.ProviderSlack, parsed.Type)
	}
	inner := innerFromEvent(parsed.InnerEvent)

	if eventType == "" {
		eventType = slackEventType(inner)
	}
	if !slackMessageEvents[eventType] && !slackOpenedEvents[eventType] {
		return nil, untracked(domain.ProviderSlack, eventType)
	}

	var auths slackAuthorizations
	if err := json.Unmarshal(raw, &auths); err != nil {
		return nil, fmt.Errorf("decoding slack authorizations: %w", err)
	}

	var bot slackAuthorization
	for _, auth := range auths.Authorizations {
		if auth.IsBot {
			bot = auth
			break
		}
	}

	baseType := domain.BaseTypeOpened
	if slackMessageEvents[eventType] {
		baseType = domain.BaseTypeMessage
	}

	channelType, ok := slackChannelTypes[eventType]
	if !ok {
		channelType = domain.ChannelDirectMessage
	}

	appID := parsed.APIAppID
	if appID == "" {
		appID = cfg.AppID
	}

	text := inner.Text
	mentioned := (bot.UserID != "" && strings.Contains(text, "<@"+bot.UserID+">")) ||
		(cfg.AppMentionID != "" && strings.Contains(text, "<@"+cfg.AppMentionID+">"))

	return &domain.WebhookEvent{
		EventID:   "slack-" + callback.EventID,
		BaseType:  baseType,
		EventType: eventType,
		Timestamp: slackTimestamp(inner, callback.EventTime),
		Text:      text,
		CleanText: strings.TrimSpace(replaceSlackMentions(text, cfg.AppName, bot.UserID, cfg.AppMentionID)),
		Provider:  domain.ProviderSlack,
		Bot: domain.Bot{
			ID:             bot.UserID,
			AppID:          appID,
			IsBotMentioned: mentioned,
			BotName:        cfg.AppName,
		},
		ProviderInfo: domain.ProviderInfo{
			Team: domain.Ref{ID: parsed.TeamID},
			Org:  domain.Ref{ID: parsed.EnterpriseID},
		},
		Sender: domain.Sender{ID: inner.User},
		Channel: domain.Channel{
			ID:   inner.Channel,
			Type: channelType,
		},
		Event: domain.EventDetail{
			ID:       callback.EventID,
			Type:     inner.Type,
			Subtype:  inner.Subtype,
			Text:     text,
			TS:       inner.TS,
			ParentTS: inner.ThreadTS,
		},
		OriginalPayload: rawCopy(raw),
	}, nil
}

func slackTimestamp(inner slackInner, eventTime int) float64 {
	for _, s := range []string{inner.EventTS, inner.TS} {
		if s == "" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return float64(eventTime)
}
