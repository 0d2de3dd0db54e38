package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

// SlackAdapter implements the Events API and interactivity endpoints.
type SlackAdapter struct {
	signingSecret string
	connector     domain.ConnectorConfig
	normalizer    mapper.Normalizer
	callbacks     callbacks
}

func NewSlackAdapter(signingSecret string, connector domain.ConnectorConfig) *SlackAdapter {
	return &SlackAdapter{
		signingSecret: signingSecret,
		connector:     connector,
		normalizer:    mapper.NewSlackNormalizer(),
	}
}

func (a *SlackAdapter) Provider() domain.Provider {
	return domain.ProviderSlack
}

// On registers a handler for a raw dispatch key.
func (a *SlackAdapter) On(key string, h Handler) {
	a.callbacks.on(key, h)
}

func (a *SlackAdapter) OnEvent(eventType string, h Handler) { a.On(eventType, h) }
func (a *SlackAdapter) OnCommand(command string, h Handler) { a.On("command_"+command, h) }
func (a *SlackAdapter) OnAction(actionID string, h Handler) { a.On("action_"+actionID, h) }
func (a *SlackAdapter) OnShortcut(id string, h Handler) { a.On("shortcut_"+id, h) }
func (a *SlackAdapter) OnMessage(h Handler) { a.On("message", h) }

func (a *SlackAdapter) OnDialogSubmission(callbackID string, h Handler) {
	a.On("dialog_"+callbackID, h)
}

func (a *SlackAdapter) Receive(ctx context.Context, req Request) (*Response, error) {
	if err := a.verify(req.Headers, req.Body); err != nil {
		return nil, err
	}

	if isSlackForm(req.Headers.Get("Content-Type"), req.Body) {
		return a.receiveForm(ctx, req)
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding slack body: %w", err)
	}
	if ssl, _ := payload["ssl_check"].(bool); ssl {
		return ack(payload, nil), nil
	}

	outerType, _ := payload["type"].(string)
	switch outerType {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(req.Body, &challenge); err != nil {
			return nil, fmt.Errorf("decoding slack challenge: %w", err)
		}
		return jsonResponse(http.StatusOK, map[string]string{"challenge": challenge.Challenge})
	case slackevents.CallbackEvent:
		return a.receiveEvent(ctx, req.Body, payload)
	default:
		return a.receiveInteraction(ctx, req.Body, payload)
	}
}

func (a *SlackAdapter) verify(headers http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(headers, a.signingSecret)
	switch {
	case errors.Is(err, slack.ErrMissingHeaders):
		return verificationError(domain.ProviderSlack, "missing signature or timestamp")
	case errors.Is(err, slack.ErrExpiredTimestamp):
		return verificationError(domain.ProviderSlack, "timestamp outside allowed window")
	case err != nil:
		return verificationError(domain.ProviderSlack, err.Error())
	}
	if _, err := sv.Write(body); err != nil {
		return verificationError(domain.ProviderSlack, err.Error())
	}
	if err := sv.Ensure(); err != nil {
		return verificationError(domain.ProviderSlack, "signature mismatch")
	}
	return nil
}

func (a *SlackAdapter) receiveEvent(ctx context.Context, body []byte, payload map[string]any) (*Response, error) {
	var (
		innerType string
		hook      any
	)
	parsed, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.DebugContext(ctx, "slack inner event not recognized", "error", err)
	} else {
		innerType = parsed.InnerEvent.Type
		hook = parsed
	}

	event, err := a.normalizer.Normalize("", body, a.connector)
	switch {
	case errors.Is(err, mapper.ErrUntrackedEvent):
		slog.DebugContext(ctx, "slack event not tracked", "error", err)
		event = nil
	case err != nil:
		return nil, fmt.Errorf("normalizing slack event: %w", err)
	}

	if err := a.dispatch(ctx, Dispatch{Payload: payload, Event: event, Hook: hook}, innerType); err != nil {
		return nil, err
	}
	return ack(payload, event), nil
}

func (a *SlackAdapter) receiveInteraction(ctx context.Context, body []byte, payload map[string]any) (*Response, error) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("decoding slack interaction: %w", err)
	}
	if err := a.dispatch(ctx, Dispatch{Payload: payload, Hook: cb}, interactionKeys(cb)...); err != nil {
		return nil, err
	}
	return ack(payload, nil), nil
}

// receiveForm handles slash commands and form-wrapped interactive payloads
// (payload=<json>).
func (a *SlackAdapter) receiveForm(ctx context.Context, req Request) (*Response, error) {
	form, err := url.ParseQuery(string(bytes.TrimSpace(req.Body)))
	if err != nil {
		return nil, fmt.Errorf("decoding slack form: %w", err)
	}
	if form.Get("ssl_check") == "1" {
		return ack(formPayload(form), nil), nil
	}
	if raw := form.Get("payload"); raw != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("decoding slack interactive payload: %w", err)
		}
		return a.receiveInteraction(ctx, []byte(raw), payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("building slash command request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	cmd, err := slack.SlashCommandParse(httpReq)
	if err != nil {
		return nil, fmt.Errorf("decoding slash command: %w", err)
	}

	payload := formPayload(form)
	var keys []string
	if cmd.Command != "" {
		keys = append(keys, "command_"+cmd.Command)
	}
	if err := a.dispatch(ctx, Dispatch{Payload: payload, Hook: cmd}, keys...); err != nil {
		return nil, err
	}
	return ack(payload, nil), nil
}

// dispatch runs the first key, in priority order, that has callbacks. The
// message key is always the last candidate.
func (a *SlackAdapter) dispatch(ctx context.Context, d Dispatch, keys ...string) error {
	for _, key := range append(keys, "message") {
		if a.callbacks.has(key) {
			d.Key = key
			return a.callbacks.run(ctx, d)
		}
	}
	return nil
}

func interactionKeys(cb slack.InteractionCallback) []string {
	var keys []string
	if actions := cb.ActionCallback.BlockActions; len(actions) > 0 && actions[0].ActionID != "" {
		keys = append(keys, "action_"+actions[0].ActionID)
	}
	if actions := cb.ActionCallback.AttachmentActions; len(actions) > 0 && actions[0].Name != "" {
		keys = append(keys, "action_"+actions[0].Name)
	}
	if cb.CallbackID == "" {
		return keys
	}
	switch cb.Type {
	case slack.InteractionTypeShortcut, slack.InteractionTypeMessageAction:
		keys = append(keys, "shortcut_"+cb.CallbackID)
	case slack.InteractionTypeDialogSubmission:
		keys = append(keys, "dialog_"+cb.CallbackID)
	}
	return keys
}

func isSlackForm(contentType string, body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		(len(trimmed) > 0 && trimmed[0] != '{')
}

func formPayload(form url.Values) map[string]any {
	payload := make(map[string]any, len(form))
	for k := range form {
		payload[k] = form.Get(k)
	}
	return payload
}
