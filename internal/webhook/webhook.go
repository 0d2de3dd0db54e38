// Package webhook verifies inbound provider requests and turns them into
// canonical events. Each adapter moves a request through
// UNVERIFIED -> VERIFIED -> DISPATCHED; a verification failure is terminal
// and nothing is dispatched.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"

	"basegraph.app/hookrelay/internal/domain"
)

var (
	ErrVerification         = errors.New("webhook verification failed")
	ErrWebhookNotRegistered = errors.New("webhook not registered")
)

// VerificationError reports why a request was rejected before dispatch.
type VerificationError struct {
	Provider domain.Provider
	Reason   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrVerification, e.Provider, e.Reason)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerification
}

func verificationError(provider domain.Provider, reason string) error {
	return &VerificationError{Provider: provider, Reason: reason}
}

type Request struct {
	Method  string
	Headers http.Header
	Body    []byte
	Query   url.Values
}

// Response is written back to the provider as-is. Event is set when the
// request carried a tracked event.
type Response struct {
	StatusCode int
	Body       []byte
	Payload    map[string]any
	Event      *domain.WebhookEvent
}

// Dispatch is what registered callbacks receive. Hook holds the typed
// payload when the adapter parsed one with a provider library.
type Dispatch struct {
	Key     string
	Payload map[string]any
	Event   *domain.WebhookEvent
	Hook    any
}

type Handler func(ctx context.Context, d Dispatch) error

type Adapter interface {
	Provider() domain.Provider
	Receive(ctx context.Context, req Request) (*Response, error)
}

var okBody = []byte(`{"ok":true}`)

func ack(payload map[string]any, event *domain.WebhookEvent) *Response {
	return &Response{StatusCode: http.StatusOK, Body: okBody, Payload: payload, Event: event}
}

func jsonResponse(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return &Response{StatusCode: status, Body: body}, nil
}

// callbacks is a key -> handlers table shared by adapters.
type callbacks struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func (c *callbacks) on(key string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string][]Handler)
	}
	c.handlers[key] = append(c.handlers[key], h)
}

func (c *callbacks) get(key string) []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[key]
}

func (c *callbacks) has(key string) bool {
	return key != "" && len(c.get(key)) > 0
}

func (c *callbacks) run(ctx context.Context, d Dispatch) error {
	var errs []error
	for _, h := range c.get(d.Key) {
		if err := h(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("callback %s: %w", d.Key, err))
		}
	}
	return errors.Join(errs...)
}

// Registry maps adapter names to adapters. It does not retry or queue.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// AddWebhook registers an adapter, replacing any previous one with that name.
func (r *Registry) AddWebhook(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Receive(ctx context.Context, name string, req Request) (*Response, error) {
	adapter, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWebhookNotRegistered, name)
	}
	return adapter.Receive(ctx, req)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
