package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

const whatsappSignatureHeader = "X-Hub-Signature-256"

// WhatsAppAdapter serves the Meta Cloud API webhook: the GET subscription
// handshake and signed POST deliveries. Without an app secret only the
// handshake succeeds.
type WhatsAppAdapter struct {
	appSecret   []byte
	verifyToken string
	connector   domain.ConnectorConfig
	normalizer  mapper.Normalizer
	callbacks   callbacks
}

func NewWhatsAppAdapter(appSecret, verifyToken string, connector domain.ConnectorConfig) *WhatsAppAdapter {
	return &WhatsAppAdapter{
		appSecret:   []byte(appSecret),
		verifyToken: verifyToken,
		connector:   connector,
		normalizer:  mapper.NewWhatsAppNormalizer(),
	}
}

func (a *WhatsAppAdapter) Provider() domain.Provider {
	return domain.ProviderWhatsApp
}

// OnMessage runs once per delivery that carries a message.
func (a *WhatsAppAdapter) OnMessage(h Handler) { a.callbacks.on("message", h) }

// OnError runs when a delivery reports errors from the platform.
func (a *WhatsAppAdapter) OnError(h Handler) { a.callbacks.on("error", h) }

func (a *WhatsAppAdapter) Receive(ctx context.Context, req Request) (*Response, error) {
	if req.Method == http.MethodGet {
		return a.handshake(req)
	}

	if err := a.verify(req.Headers.Get(whatsappSignatureHeader), req.Body); err != nil {
		return nil, err
	}

	var payload map[string]any
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding whatsapp body: %w", err)
	}

	event, err := a.normalizer.Normalize("", req.Body, a.connector)
	if err != nil {
		return nil, fmt.Errorf("normalizing whatsapp event: %w", err)
	}

	var errs []error
	if event.IsTrackableMessage() {
		errs = append(errs, a.callbacks.run(ctx, Dispatch{Key: "message", Payload: payload, Event: event}))
	}
	if hasWhatsAppErrors(payload) {
		errs = append(errs, a.callbacks.run(ctx, Dispatch{Key: "error", Payload: payload}))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if !event.IsTrackableMessage() {
		event = nil
	}
	return ack(payload, event), nil
}

func (a *WhatsAppAdapter) handshake(req Request) (*Response, error) {
	mode := req.Query.Get("hub.mode")
	token := req.Query.Get("hub.verify_token")
	if mode != "subscribe" || a.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(a.verifyToken)) != 1 {
		return nil, verificationError(domain.ProviderWhatsApp, "verify token mismatch")
	}
	return &Response{StatusCode: http.StatusOK, Body: []byte(req.Query.Get("hub.challenge"))}, nil
}

// verify checks the Meta signature, which uses the same sha256= HMAC scheme
// as GitHub deliveries.
func (a *WhatsAppAdapter) verify(signature string, body []byte) error {
	if len(a.appSecret) == 0 {
		return verificationError(domain.ProviderWhatsApp, "no app secret configured")
	}
	if signature == "" {
		return verificationError(domain.ProviderWhatsApp, "missing "+whatsappSignatureHeader)
	}
	if err := gh.ValidateSignature(signature, body, a.appSecret); err != nil {
		return verificationError(domain.ProviderWhatsApp, "signature mismatch")
	}
	return nil
}

func hasWhatsAppErrors(payload map[string]any) bool {
	entries, _ := payload["entry"].([]any)
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		changes, _ := entry["changes"].([]any)
		for _, c := range changes {
			change, _ := c.(map[string]any)
			value, _ := change["value"].(map[string]any)
			if errs, _ := value["errors"].([]any); len(errs) > 0 {
				return true
			}
		}
	}
	return false
}
