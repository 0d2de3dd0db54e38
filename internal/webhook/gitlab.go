package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	glhooks "github.com/go-playground/webhooks/v6/gitlab"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

const (
	gitlabTokenHeader = "X-Gitlab-Token"
	gitlabEventHeader = "X-Gitlab-Event"
)

var gitlabEvents = []glhooks.Event{
	glhooks.IssuesEvents,
	glhooks.CommentEvents,
	glhooks.MergeRequestEvents,
}

type GitLabAdapter struct {
	token      string
	hook       *glhooks.Webhook
	connector  domain.ConnectorConfig
	normalizer mapper.Normalizer
	callbacks  callbacks
}

func NewGitLabAdapter(webhookToken string, connector domain.ConnectorConfig) (*GitLabAdapter, error) {
	// The token is checked here in constant time, so the hook parser runs without one.
	hook, err := glhooks.New()
	if err != nil {
		return nil, fmt.Errorf("creating gitlab hook parser: %w", err)
	}
	return &GitLabAdapter{
		token:      webhookToken,
		hook:       hook,
		connector:  connector,
		normalizer: mapper.NewGitLabNormalizer(),
	}, nil
}

func (a *GitLabAdapter) Provider() domain.Provider {
	return domain.ProviderGitLab
}

// On registers a handler for a canonical event type such as "note.created".
func (a *GitLabAdapter) On(key string, h Handler) {
	a.callbacks.on(key, h)
}

func (a *GitLabAdapter) Receive(ctx context.Context, req Request) (*Response, error) {
	token := req.Headers.Get(gitlabTokenHeader)
	if token == "" || a.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return nil, verificationError(domain.ProviderGitLab, "webhook token mismatch")
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding gitlab body: %w", err)
	}

	eventHeader := req.Headers.Get(gitlabEventHeader)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building gitlab request: %w", err)
	}
	httpReq.Header = req.Headers.Clone()

	hook, err := a.hook.Parse(httpReq, gitlabEvents...)
	if err != nil {
		if errors.Is(err, glhooks.ErrEventNotFound) {
			slog.DebugContext(ctx, "gitlab event not tracked", "event_header", eventHeader)
			return ack(payload, nil), nil
		}
		return nil, fmt.Errorf("parsing gitlab event: %w", err)
	}

	event, err := a.normalizer.Normalize(eventHeader, req.Body, a.connector)
	switch {
	case errors.Is(err, mapper.ErrUntrackedEvent):
		slog.DebugContext(ctx, "gitlab event not tracked", "error", err)
		return ack(payload, nil), nil
	case err != nil:
		return nil, fmt.Errorf("normalizing gitlab event: %w", err)
	}

	if a.callbacks.has(event.EventType) {
		if err := a.callbacks.run(ctx, Dispatch{Key: event.EventType, Payload: payload, Event: event, Hook: hook}); err != nil {
			return nil, err
		}
	}
	return ack(payload, event), nil
}
