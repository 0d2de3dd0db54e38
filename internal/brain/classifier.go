package brain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/hookrelay/common/llm"
	"basegraph.app/hookrelay/internal/store"
)

type Decision string

const (
	DecisionNewTask    Decision = "new_task"
	DecisionOldTask    Decision = "old_task"
	DecisionIrrelevant Decision = "irrelevant"
)

func (d Decision) Valid() bool {
	switch d {
	case DecisionNewTask, DecisionOldTask, DecisionIrrelevant:
		return true
	}
	return false
}

type PreClassification struct {
	Decision Decision `json:"decision" jsonschema:"enum=new_task,enum=old_task,enum=irrelevant" jsonschema_description:"new_task for new requests, old_task for updates on existing items, irrelevant for conversational text"`
	Reason   string   `json:"reason" jsonschema_description:"A brief explanation for the decision"`
}

var preClassificationSchema = llm.GenerateSchema[PreClassification]()

const (
	preClassifierStage         = "pre_classification"
	preClassifierPromptVersion = "v1"
)

// PreClassifier is the cheap first pass that buckets a message before any
// task details are generated.
type PreClassifier struct {
	llm   llm.Client
	evals store.LLMEvalStore
}

func NewPreClassifier(client llm.Client, evals store.LLMEvalStore) *PreClassifier {
	return &PreClassifier{llm: client, evals: evals}
}

func (c *PreClassifier) Classify(ctx context.Context, cleanText string) (*PreClassification, error) {
	prompt := buildPreClassifierPrompt(cleanText)

	var result PreClassification
	start := time.Now()
	resp, err := chatWithRetry(ctx, c.llm, preClassifierStage, llm.Request{
		SystemPrompt: preClassifierSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "pre_classification",
		Schema:       preClassificationSchema,
		MaxTokens:    300,
		Temperature:  llm.Temp(llmTemperature),
	}, &result)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	if !result.Decision.Valid() {
		return nil, fmt.Errorf("pre-classification: unknown decision %q", result.Decision)
	}

	logEval(ctx, c.evals, c.llm.Model(), evalRecord{
		stage:         preClassifierStage,
		promptVersion: preClassifierPromptVersion,
		input:         prompt,
		output:        result,
		latency:       latency,
		resp:          resp,
	})

	slog.InfoContext(ctx, "event pre-classified",
		"decision", result.Decision,
		"reason", result.Reason,
		"repaired", resp != nil && resp.Repaired,
		"latency_ms", latency.Milliseconds())

	return &result, nil
}

func buildPreClassifierPrompt(cleanText string) string {
	var sb strings.Builder
	sb.WriteString("A user has sent the following message:\n---\n")
	sb.WriteString(fmt.Sprintf("%q\n", cleanText))
	sb.WriteString("---\n")
	sb.WriteString("Classify the intent of this message and respond in the required JSON format.")
	return sb.String()
}

const preClassifierSystemPrompt = `You triage chat and code-review messages sent to an assistant bot. Categorize the intent of one message.

## Categories

- new_task: The user clearly asks for an action or for something to be created. Direct commands ("Remind me to..."), requests ("Can you open a ticket..."), scheduling ("Schedule a meeting...").
- old_task: The user refers to a previous request or task. "update", "follow-up", "done", "finished", or a reference to an earlier topic.
- irrelevant: Conversation, acknowledgements, or no clear actionable request. "hello", "thanks!", "sounds good".

## Rules

- Decide only from the text of the message. Do not invent context.
- When in doubt, choose irrelevant. Pick new_task or old_task only when the intent is explicit.
- Before deciding, check whether the message asks the assistant to perform an action. If not, it is irrelevant.`
