package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Client returns a single structured object per call, decoded into result.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
	// Repaired is set when the raw output needed RepairJSON to decode.
	Repaired bool
}

// GenerateSchema reflects T for strict structured output. Fields without
// omitempty are required, and fields tagged jsonschema:"nullable" become
// anyOf [T, null] since strict mode rejects oneOf.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	oneOfToAnyOf(schema)
	return schema
}

func oneOfToAnyOf(s *jsonschema.Schema) {
	if s == nil {
		return
	}
	if len(s.OneOf) > 0 {
		s.AnyOf = append(s.AnyOf, s.OneOf...)
		s.OneOf = nil
	}
	for _, sub := range s.AnyOf {
		oneOfToAnyOf(sub)
	}
	oneOfToAnyOf(s.Items)
	if s.Properties == nil {
		return
	}
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		oneOfToAnyOf(pair.Value)
	}
}

func Temp(t float64) *float64 {
	return &t
}

func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	// A model that produced unparseable output will usually do it again.
	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		return false
	}

	statusCode := 0
	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	switch {
	case errors.As(err, &openaiErr):
		statusCode = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		statusCode = anthropicErr.StatusCode
	}

	if statusCode != 0 {
		switch {
		case statusCode == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry",
				"status_code", statusCode)
			return true
		case statusCode >= 500:
			slog.WarnContext(ctx, "llm server error, will retry",
				"status_code", statusCode)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable",
				"status_code", statusCode)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
