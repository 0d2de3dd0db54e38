package mapper

import (
	"encoding/json"
	"errors"
	"fmt"

	"basegraph.app/hookrelay/internal/domain"
)

// ErrUntrackedEvent is returned for event types a normalizer does not track.
// Callers acknowledge and skip these.
var ErrUntrackedEvent = errors.New("untracked event")

// Normalizer converts one provider's raw webhook body into a WebhookEvent.
// Implementations are pure: the same input always yields the same event.
type Normalizer interface {
	Provider() domain.Provider
	// Normalize takes the provider event type as seen by the transport
	// (e.g. "issues.opened", "Note Hook"); it may be empty when the type is
	// carried in the body itself.
	Normalize(eventType string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error)
}

// Registry dispatches by provider tag.
type Registry struct {
	normalizers map[domain.Provider]Normalizer
}

func NewRegistry(normalizers ...Normalizer) *Registry {
	r := &Registry{normalizers: make(map[domain.Provider]Normalizer, len(normalizers))}
	for _, n := range normalizers {
		r.normalizers[n.Provider()] = n
	}
	return r
}

// DefaultRegistry knows every supported provider.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewSlackNormalizer(),
		NewGitHubNormalizer(),
		NewWhatsAppNormalizer(),
		NewGitLabNormalizer(),
	)
}

func (r *Registry) Normalize(provider domain.Provider, eventType string, raw []byte, cfg domain.ConnectorConfig) (*domain.WebhookEvent, error) {
	n, ok := r.normalizers[provider]
	if !ok {
		return nil, fmt.Errorf("no normalizer for provider %q", provider)
	}
	return n.Normalize(eventType, raw, cfg)
}

func untracked(provider domain.Provider, eventType string) error {
	return fmt.Errorf("%w: %s %q", ErrUntrackedEvent, provider, eventType)
}

// rawCopy detaches the stored payload from the caller's buffer.
func rawCopy(raw []byte) json.RawMessage {
	return append(json.RawMessage(nil), raw...)
}
