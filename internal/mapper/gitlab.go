package mapper

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/hookrelay/internal/domain"
)

// GitLab's payloads use both RFC 3339 and the legacy "2013-12-03 17:15:43 UTC" form.
var gitlabTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05 -0700",
}

// gitlabHook is the part of a typed client-go payload the canonical event
// is built from.
type gitlabHook struct {
	canonical   string
	eventID     string
	baseType    domain.BaseType
	detailType  string
	objectID    int64
	action      string
	text        string
	createdAt   string
	channelIID  int64
	channelType domain.ChannelType
	parentTS    string
	projectID   int64
	namespace   string
	user        gitlab.EventUser
}

type GitLabNormalizer struct{}

func NewGitLabNormalizer() *GitLabNormalizer {
	return &GitLabNormalizer{}
}

func (n *GitLabNormalizer) Provider() domain.Provider {
	return domain.ProviderGitLab
}

// Normalize accepts the X-Gitlab-Event header value ("Issue Hook", "Note Hook",
// "Merge Request Hook"). Only opened issues, opened merge requests, and notes
// on either are tracked.
func (n *GitLabNormalizer) Normalize(eventType string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error) {
	parsed, err := gitlab.ParseWebhook(gitlab.EventType(eventType), raw)
	if err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, fmt.Errorf("decoding gitlab payload: %w", err)
		}
		// Unknown hooks and noteable types.
		return nil, untracked(domain.ProviderGitLab, eventType)
	}

	var h gitlabHook
	switch ev := parsed.(type) {
	case *gitlab.IssueEvent:
		attrs := ev.ObjectAttributes
		if attrs.Action != "open" {
			return nil, untracked(domain.ProviderGitLab, eventType+"."+attrs.Action)
		}
		h = gitlabHook{
			canonical: "issues.opened", eventID: fmt.Sprintf("gitlab-issue-%d", attrs.ID),
			baseType: domain.BaseTypeOpened, detailType: "issue",
			objectID: attrs.ID, action: attrs.Action, text: attrs.Description, createdAt: attrs.CreatedAt,
			channelIID: attrs.IID, channelType: domain.ChannelIssue,
			projectID: ev.Project.ID, namespace: ev.Project.Namespace, user: derefUser(ev.User),
		}

	case *gitlab.MergeEvent:
		attrs := ev.ObjectAttributes
		if attrs.Action != "open" {
			return nil, untracked(domain.ProviderGitLab, eventType+"."+attrs.Action)
		}
		h = gitlabHook{
			canonical: "merge_request.opened", eventID: fmt.Sprintf("gitlab-mr-%d", attrs.ID),
			baseType: domain.BaseTypeOpened, detailType: "merge_request",
			objectID: attrs.ID, action: attrs.Action, text: attrs.Description, createdAt: attrs.CreatedAt,
			channelIID: attrs.IID, channelType: domain.ChannelMergeRequest,
			projectID: ev.Project.ID, namespace: ev.Project.Namespace, user: derefUser(ev.User),
		}

	case *gitlab.IssueCommentEvent:
		attrs := ev.ObjectAttributes
		var user gitlab.EventUser
		if ev.User != nil {
			user = gitlab.EventUser{ID: ev.User.ID, Username: ev.User.Username, Name: ev.User.Name, AvatarURL: ev.User.AvatarURL}
		}
		h = gitlabHook{
			canonical: "note.created", eventID: fmt.Sprintf("gitlab-note-%d", attrs.ID),
			baseType: domain.BaseTypeMessage, detailType: "note",
			objectID: attrs.ID, action: string(attrs.Action), text: attrs.Note, createdAt: attrs.CreatedAt,
			channelIID: ev.Issue.IID, channelType: domain.ChannelIssue,
			parentTS:  strconv.FormatInt(ev.Issue.ID, 10),
			projectID: ev.ProjectID, namespace: ev.Project.Namespace, user: user,
		}

	case *gitlab.MergeCommentEvent:
		attrs := ev.ObjectAttributes
		h = gitlabHook{
			canonical: "note.created", eventID: fmt.Sprintf("gitlab-note-%d", attrs.ID),
			baseType: domain.BaseTypeMessage, detailType: "note",
			objectID: attrs.ID, action: string(attrs.Action), text: attrs.Note, createdAt: attrs.CreatedAt,
			channelIID: ev.MergeRequest.IID, channelType: domain.ChannelMergeRequest,
			parentTS:  strconv.FormatInt(ev.MergeRequest.ID, 10),
			projectID: ev.ProjectID, namespace: ev.Project.Namespace, user: derefUser(ev.User),
		}

	default:
		return nil, untracked(domain.ProviderGitLab, eventType)
	}

	createdAt := gitlabUnix(h.createdAt)
	projectID := strconv.FormatInt(h.projectID, 10)
	senderID := ""
	if h.user.ID != 0 {
		senderID = strconv.FormatInt(h.user.ID, 10)
	}

	return &domain.WebhookEvent{
		EventID:   h.eventID,
		BaseType:  h.baseType,
		EventType: h.canonical,
		Timestamp: float64(createdAt),
		Text:      h.text,
		CleanText: strings.TrimSpace(replaceHandle(h.text, cfg.BotName, cfg.AppName)),
		Provider:  domain.ProviderGitLab,
		Bot: domain.Bot{
			ID:             projectID,
			AppID:          cfg.AppID,
			IsBotMentioned: containsHandle(h.text, cfg.BotName) || containsHandle(h.text, cfg.AppMentionID),
			BotName:        cfg.BotName,
		},
		ProviderInfo: domain.ProviderInfo{
			Team: domain.Ref{ID: projectID},
			Org:  domain.Ref{ID: h.namespace},
		},
		Sender: domain.Sender{
			ID:        senderID,
			Name:      h.user.Username,
			AvatarURL: h.user.AvatarURL,
		},
		Channel: domain.Channel{
			ID:   strconv.FormatInt(h.channelIID, 10),
			Type: h.channelType,
		},
		Event: domain.EventDetail{
			ID:       strconv.FormatInt(h.objectID, 10),
			Type:     h.detailType,
			Subtype:  h.action,
			Text:     h.text,
			TS:       strconv.FormatInt(createdAt, 10),
			ParentTS: h.parentTS,
		},
		OriginalPayload: rawCopy(raw),
	}, nil
}

func derefUser(u *gitlab.EventUser) gitlab.EventUser {
	if u == nil {
		return gitlab.EventUser{}
	}
	return *u
}

func gitlabUnix(s string) int64 {
	for _, layout := range gitlabTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
