package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/model"
)

type llmEvalStore struct {
	q db.DBTX
}

func newLLMEvalStore(q db.DBTX) LLMEvalStore {
	return &llmEvalStore{q: q}
}

func (s *llmEvalStore) Create(ctx context.Context, eval *model.LLMEval) (*model.LLMEval, error) {
	var latencyMs, promptTokens, completionTokens *int32
	if eval.LatencyMs != nil {
		v := int32(*eval.LatencyMs)
		latencyMs = &v
	}
	if eval.PromptTokens != nil {
		v := int32(*eval.PromptTokens)
		promptTokens = &v
	}
	if eval.CompletionTokens != nil {
		v := int32(*eval.CompletionTokens)
		completionTokens = &v
	}

	evalID := eval.ID
	if evalID == 0 {
		evalID = id.New()
	}
	var output []byte
	if len(eval.OutputJSON) > 0 {
		output = eval.OutputJSON
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO llm_evals (id, event_log_id, microfox_id, stage, input_text, output_json, model,
			temperature, prompt_version, latency_ms, prompt_tokens, completion_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, event_log_id, microfox_id, stage, input_text, output_json, model,
			temperature, prompt_version, latency_ms, prompt_tokens, completion_tokens, created_at`,
		evalID, eval.EventLogID, eval.MicrofoxID, eval.Stage, eval.InputText, output, eval.Model,
		eval.Temperature, eval.PromptVersion, latencyMs, promptTokens, completionTokens,
	)
	return scanLLMEval(row)
}

func scanLLMEval(row pgx.Row) (*model.LLMEval, error) {
	var e model.LLMEval
	var latencyMs, promptTokens, completionTokens *int32
	err := row.Scan(
		&e.ID,
		&e.EventLogID,
		&e.MicrofoxID,
		&e.Stage,
		&e.InputText,
		&e.OutputJSON,
		&e.Model,
		&e.Temperature,
		&e.PromptVersion,
		&latencyMs,
		&promptTokens,
		&completionTokens,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.LatencyMs = intPtr(latencyMs)
	e.PromptTokens = intPtr(promptTokens)
	e.CompletionTokens = intPtr(completionTokens)
	return &e, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}
