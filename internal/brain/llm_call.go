package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/common/llm"
	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
)

const (
	llmMaxAttempts = 3
	llmTemperature = 0.1
)

// retryBackoff is 1s, 2s between attempts. Tests shrink it.
var retryBackoff = func(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

// chatWithRetry retries rate limits, 5xx and network errors with
// exponential backoff. Malformed output and deadline errors fail at once.
func chatWithRetry(ctx context.Context, client llm.Client, stage string, req llm.Request, result any) (*llm.Response, error) {
	var (
		resp *llm.Response
		err  error
	)
	for attempt := 0; attempt < llmMaxAttempts; attempt++ {
		resp, err = client.Chat(ctx, req, result)
		if err == nil {
			return resp, nil
		}
		if !llm.IsRetryable(ctx, err) {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		if attempt == llmMaxAttempts-1 {
			break
		}
		slog.WarnContext(ctx, "llm call retry",
			"stage", stage,
			"attempt", attempt+1,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", stage, ctx.Err())
		case <-time.After(retryBackoff(attempt)):
		}
	}
	return nil, fmt.Errorf("%s after %d attempts: %w", stage, llmMaxAttempts, err)
}

type evalRecord struct {
	stage         string
	promptVersion string
	input         string
	output        any
	latency       time.Duration
	resp          *llm.Response
}

// logEval stores one model call. The event log and bot are read from the
// context's log fields. Failures are logged and never fail the call.
func logEval(ctx context.Context, evals store.LLMEvalStore, modelName string, rec evalRecord) {
	if evals == nil {
		return
	}

	outputJSON, err := json.Marshal(rec.output)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal llm output for eval", "stage", rec.stage, "error", err)
		return
	}

	fields := logger.GetLogFields(ctx)
	eval := &model.LLMEval{
		ID:            id.New(),
		EventLogID:    fields.EventLogID,
		MicrofoxID:    fields.MicrofoxID,
		Stage:         rec.stage,
		InputText:     rec.input,
		OutputJSON:    outputJSON,
		Model:         modelName,
		Temperature:   floatPtr(llmTemperature),
		PromptVersion: stringPtr(rec.promptVersion),
		LatencyMs:     intPtr(int(rec.latency.Milliseconds())),
	}
	if rec.resp != nil {
		eval.PromptTokens = intPtr(rec.resp.PromptTokens)
		eval.CompletionTokens = intPtr(rec.resp.CompletionTokens)
	}

	if _, err := evals.Create(ctx, eval); err != nil {
		slog.ErrorContext(ctx, "failed to log eval", "stage", rec.stage, "error", err)
	}
}

func floatPtr(f float64) *float64 { return &f }
func stringPtr(s string) *string  { return &s }
func intPtr(i int) *int           { return &i }
