package mapper

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	gh "github.com/google/go-github/v57/github"

	"basegraph.app/hookrelay/internal/domain"
)

const defaultGitHubBotName = "microfox-ai"

// GitHubTrackedEvents lists the "<X-GitHub-Event>.<action>" keys that normalize.
var GitHubTrackedEvents = []string{
	"issue_comment.created",
	"pull_request_review_comment.created",
	"issues.opened",
	"pull_request.opened",
}

type GitHubNormalizer struct{}

func NewGitHubNormalizer() *GitHubNormalizer {
	return &GitHubNormalizer{}
}

func (n *GitHubNormalizer) Provider() domain.Provider {
	return domain.ProviderGitHub
}

// GitHubEventKey joins the X-GitHub-Event header with the payload action.
func GitHubEventKey(header string, raw []byte) string {
	var body struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Action == "" {
		return header
	}
	return header + "." + body.Action
}

// githubCommon carries fields that go-github does not expose on every event type.
type githubCommon struct {
	Organization struct {
		Login string `json:"login"`
	} `json:"organization"`
}

func (n *GitHubNormalizer) Normalize(eventType string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error) {
	if !strings.Contains(eventType, ".") {
		eventType = GitHubEventKey(eventType, raw)
	}
	if !slices.Contains(GitHubTrackedEvents, eventType) {
		return nil, untracked(domain.ProviderGitHub, eventType)
	}
	header, _, _ := strings.Cut(eventType, ".")

	botName := cfg.BotName
	if botName == "" {
		botName = defaultGitHubBotName
	}

	var common githubCommon
	if err := json.Unmarshal(raw, &common); err != nil {
		return nil, fmt.Errorf("decoding github payload: %w", err)
	}

	parsed, err := gh.ParseWebHook(header, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding github %s payload: %w", header, err)
	}

	b := githubBuilder{
		eventType: eventType,
		botName:   botName,
		cfg:       cfg,
		org:       common.Organization.Login,
		raw:       raw,
	}

	switch eventType {
	case "issue_comment.created":
		ev, ok := parsed.(*gh.IssueCommentEvent)
		if !ok {
			return nil, untracked(domain.ProviderGitHub, eventType)
		}
		comment := ev.GetComment()
		return b.build(githubParts{
			eventID:     fmt.Sprintf("github-issue_comment-%d", comment.GetID()),
			baseType:    domain.BaseTypeMessage,
			text:        comment.GetBody(),
			createdAt:   unixSeconds(comment.GetCreatedAt()),
			channelID:   ev.GetIssue().GetNumber(),
			channelType: domain.ChannelIssue,
			detailID:    comment.GetID(),
			detailType:  "issue_comment",
			action:      ev.GetAction(),
			parentTS:    ev.GetIssue().GetNodeID(),
			installID:   ev.GetInstallation().GetID(),
			ownerLogin:  ev.GetRepo().GetOwner().GetLogin(),
			sender:      ev.GetSender(),
		}), nil

	case "pull_request_review_comment.created":
		ev, ok := parsed.(*gh.PullRequestReviewCommentEvent)
		if !ok {
			return nil, untracked(domain.ProviderGitHub, eventType)
		}
		comment := ev.GetComment()
		return b.build(githubParts{
			eventID:     fmt.Sprintf("github-pr_comment-%d", comment.GetID()),
			baseType:    domain.BaseTypeMessage,
			text:        comment.GetBody(),
			createdAt:   unixSeconds(comment.GetCreatedAt()),
			channelID:   ev.GetPullRequest().GetNumber(),
			channelType: domain.ChannelPullRequest,
			detailID:    comment.GetID(),
			detailType:  "pull_request_review_comment",
			action:      ev.GetAction(),
			parentTS:    ev.GetPullRequest().GetNodeID(),
			installID:   ev.GetInstallation().GetID(),
			ownerLogin:  ev.GetRepo().GetOwner().GetLogin(),
			sender:      ev.GetSender(),
		}), nil

	case "issues.opened":
		ev, ok := parsed.(*gh.IssuesEvent)
		if !ok {
			return nil, untracked(domain.ProviderGitHub, eventType)
		}
		issue := ev.GetIssue()
		return b.build(githubParts{
			eventID:     fmt.Sprintf("github-issue-%d", issue.GetID()),
			baseType:    domain.BaseTypeOpened,
			text:        issue.GetBody(),
			createdAt:   unixSeconds(issue.GetCreatedAt()),
			channelID:   issue.GetNumber(),
			channelType: domain.ChannelIssue,
			detailID:    issue.GetID(),
			detailType:  "issues",
			action:      ev.GetAction(),
			installID:   ev.GetInstallation().GetID(),
			ownerLogin:  ev.GetRepo().GetOwner().GetLogin(),
			sender:      ev.GetSender(),
		}), nil

	case "pull_request.opened":
		ev, ok := parsed.(*gh.PullRequestEvent)
		if !ok {
			return nil, untracked(domain.ProviderGitHub, eventType)
		}
		pr := ev.GetPullRequest()
		return b.build(githubParts{
			eventID:     fmt.Sprintf("github-pr-%d", pr.GetID()),
			baseType:    domain.BaseTypeOpened,
			text:        pr.GetBody(),
			createdAt:   unixSeconds(pr.GetCreatedAt()),
			channelID:   pr.GetNumber(),
			channelType: domain.ChannelPullRequest,
			detailID:    pr.GetID(),
			detailType:  "pull_request",
			action:      ev.GetAction(),
			installID:   ev.GetInstallation().GetID(),
			ownerLogin:  ev.GetRepo().GetOwner().GetLogin(),
			sender:      ev.GetSender(),
		}), nil
	}

	return nil, untracked(domain.ProviderGitHub, eventType)
}

func unixSeconds(t gh.Timestamp) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

type githubBuilder struct {
	eventType string
	botName   string
	cfg       domain.ConnectorConfig
	org       string
	raw       []byte
}

type githubParts struct {
	eventID     string
	baseType    domain.BaseType
	text        string
	createdAt   int64
	channelID   int
	channelType domain.ChannelType
	detailID    int64
	detailType  string
	action      string
	parentTS    string
	installID   int64
	ownerLogin  string
	sender      *gh.User
}

func (b githubBuilder) build(p githubParts) *domain.WebhookEvent {
	installID := ""
	if p.installID != 0 {
		installID = strconv.FormatInt(p.installID, 10)
	}
	senderID := ""
	if p.sender.GetID() != 0 {
		senderID = strconv.FormatInt(p.sender.GetID(), 10)
	}
	ts := strconv.FormatInt(p.createdAt, 10)

	mentioned := containsHandle(p.text, b.botName) || containsHandle(p.text, b.cfg.AppMentionID)

	return &domain.WebhookEvent{
		EventID:   p.eventID,
		BaseType:  p.baseType,
		EventType: b.eventType,
		Timestamp: float64(p.createdAt),
		Text:      p.text,
		CleanText: strings.TrimSpace(replaceHandle(p.text, b.botName, b.cfg.AppName)),
		Provider:  domain.ProviderGitHub,
		Bot: domain.Bot{
			ID:             installID,
			AppID:          installID,
			IsBotMentioned: mentioned,
			BotName:        b.botName,
		},
		ProviderInfo: domain.ProviderInfo{
			Team: domain.Ref{ID: p.ownerLogin},
			Org:  domain.Ref{ID: b.org},
		},
		Sender: domain.Sender{
			ID:        senderID,
			Name:      p.sender.GetLogin(),
			AvatarURL: p.sender.GetAvatarURL(),
		},
		Channel: domain.Channel{
			ID:   strconv.Itoa(p.channelID),
			Type: p.channelType,
		},
		Event: domain.EventDetail{
			ID:       strconv.FormatInt(p.detailID, 10),
			Type:     p.detailType,
			Subtype:  p.action,
			Text:     p.text,
			TS:       ts,
			ParentTS: p.parentTS,
		},
		OriginalPayload: rawCopy(b.raw),
	}
}
