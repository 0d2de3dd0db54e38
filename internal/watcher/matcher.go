// Package watcher decides whether an incoming event continues a task that
// registered an event watcher.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/Knetic/govaluate"
	"github.com/PaesslerAG/jsonpath"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
)

// Matcher evaluates watchers against events. Compiled conditions are cached
// by expression text.
type Matcher struct {
	mu    sync.RWMutex
	exprs map[string]*govaluate.EvaluableExpression
}

func NewMatcher() *Matcher {
	return &Matcher{exprs: make(map[string]*govaluate.EvaluableExpression)}
}

// Validate reports whether a match query and condition are usable. Used
// before persisting a watcher produced by the detail generator.
func (m *Matcher) Validate(query map[string]string, condition string) error {
	if len(query) == 0 && strings.TrimSpace(condition) == "" {
		return fmt.Errorf("watcher needs a match query or a condition")
	}
	if condition != "" {
		if _, err := m.compile(condition); err != nil {
			return err
		}
	}
	return nil
}

// Match reports whether the event satisfies every match_query pair and the
// condition. A watcher with neither never matches.
func (m *Matcher) Match(ctx context.Context, w model.EventWatcher, event *domain.WebhookEvent) bool {
	if event == nil {
		return false
	}
	condition := strings.TrimSpace(w.Condition)
	if len(w.MatchQuery) == 0 && condition == "" {
		return false
	}

	if len(w.MatchQuery) > 0 {
		payload, ok := decode(event.OriginalPayload)
		if !ok {
			return false
		}
		for path, want := range w.MatchQuery {
			got, err := jsonpath.Get(normalizePath(path), payload)
			if err != nil {
				slog.DebugContext(ctx, "watcher path did not resolve",
					"watcher_id", w.ID, "path", path, "error", err)
				return false
			}
			if scalarString(got) != want {
				return false
			}
		}
	}

	if condition != "" {
		expr, err := m.compile(condition)
		if err != nil {
			slog.WarnContext(ctx, "invalid watcher condition",
				"watcher_id", w.ID, "condition", condition, "error", err)
			return false
		}
		result, err := expr.Evaluate(EventParameters(event))
		if err != nil {
			slog.DebugContext(ctx, "watcher condition eval failed",
				"watcher_id", w.ID, "error", err)
			return false
		}
		matched, _ := result.(bool)
		return matched
	}
	return true
}

// EventParameters flattens the canonical event (without its original
// payload) for condition expressions. Dotted keys are referenced with
// brackets, e.g. [channel.type] == 'issue'.
func EventParameters(event *domain.WebhookEvent) map[string]any {
	shallow := *event
	shallow.OriginalPayload = nil

	raw, err := json.Marshal(shallow)
	if err != nil {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]any{}
	}
	delete(data, "original_payload")
	return Flatten(data)
}

func (m *Matcher) compile(condition string) (*govaluate.EvaluableExpression, error) {
	m.mu.RLock()
	expr, ok := m.exprs[condition]
	m.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := govaluate.NewEvaluableExpression(condition)
	if err != nil {
		return nil, fmt.Errorf("compiling condition %q: %w", condition, err)
	}
	m.mu.Lock()
	m.exprs[condition] = expr
	m.mu.Unlock()
	return expr, nil
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "$") {
		return path
	}
	return "$." + path
}

func decode(raw json.RawMessage) (any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// scalarString renders resolved values the way they appear in a query:
// integral numbers without a decimal point.
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
