package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	gh "github.com/google/go-github/v57/github"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

type GitHubAdapter struct {
	secret     []byte
	connector  domain.ConnectorConfig
	normalizer mapper.Normalizer
	callbacks  callbacks
}

func NewGitHubAdapter(webhookSecret string, connector domain.ConnectorConfig) *GitHubAdapter {
	return &GitHubAdapter{
		secret:     []byte(webhookSecret),
		connector:  connector,
		normalizer: mapper.NewGitHubNormalizer(),
	}
}

func (a *GitHubAdapter) Provider() domain.Provider {
	return domain.ProviderGitHub
}

// On registers a handler for an "<event>.<action>" key such as "issues.opened".
func (a *GitHubAdapter) On(key string, h Handler) {
	a.callbacks.on(key, h)
}

func (a *GitHubAdapter) Receive(ctx context.Context, req Request) (*Response, error) {
	signature := req.Headers.Get(gh.SHA256SignatureHeader)
	if signature == "" {
		return nil, verificationError(domain.ProviderGitHub, "missing "+gh.SHA256SignatureHeader)
	}
	if err := gh.ValidateSignature(signature, req.Body, a.secret); err != nil {
		return nil, verificationError(domain.ProviderGitHub, err.Error())
	}

	header := req.Headers.Get(gh.EventTypeHeader)
	if header == "" {
		return nil, fmt.Errorf("missing %s header", gh.EventTypeHeader)
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding github body: %w", err)
	}
	if header == "ping" {
		return ack(payload, nil), nil
	}

	key := mapper.GitHubEventKey(header, req.Body)
	event, err := a.normalizer.Normalize(key, req.Body, a.connector)
	switch {
	case errors.Is(err, mapper.ErrUntrackedEvent):
		slog.DebugContext(ctx, "github event not tracked",
			"event_type", key,
			"delivery_id", req.Headers.Get(gh.DeliveryIDHeader))
		event = nil
	case err != nil:
		return nil, fmt.Errorf("normalizing github event: %w", err)
	}

	if a.callbacks.has(key) {
		if err := a.callbacks.run(ctx, Dispatch{Key: key, Payload: payload, Event: event}); err != nil {
			return nil, err
		}
	}

	return ack(payload, event), nil
}
