package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so webhook, orchestration and store code
// never have to repeat event or connection identifiers in each log call.
type LogFields struct {
	EventLogID *int64  // Event log row for the webhook being processed
	MessageID  *string // Redis stream message ID
	EventID    *string // Canonical event id (e.g. "slack-Ev123", "github-issue-42")
	MicrofoxID *string // Bot connection the current fan-out branch serves
	Provider   *string // slack, github, whatsapp, gitlab
	TaskID     *string // Task created or matched for this event
	Component  string  // Component name (OTel semantic convention style, e.g., "hookrelay.brain.orchestrator")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.EventLogID != nil {
		result.EventLogID = new.EventLogID
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.EventID != nil {
		result.EventID = new.EventID
	}
	if new.MicrofoxID != nil {
		result.MicrofoxID = new.MicrofoxID
	}
	if new.Provider != nil {
		result.Provider = new.Provider
	}
	if new.TaskID != nil {
		result.TaskID = new.TaskID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
// Useful for logging message text or raw model output.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
