package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"basegraph.app/hookrelay/common/llm"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
)

// TaskDetails and the types under it are sent as a strict output schema:
// every field is required and absent values are null, "" or [].
type TaskDetails struct {
	NewTask *NewTaskDetails `json:"new_task" jsonschema:"nullable" jsonschema_description:"The new task to create from the event"`
	Notes   string          `json:"notes" jsonschema_description:"How the task details were derived from the event"`
}

type NewTaskDetails struct {
	Name          string             `json:"name" jsonschema_description:"Short active summary of the request"`
	AIDescription string             `json:"ai_description" jsonschema_description:"Detailed description including who asked and where"`
	Priority      model.TaskPriority `json:"priority" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	TaskType      model.TaskType     `json:"task_type" jsonschema:"enum=default,enum=watcher,enum=scheduled"`
	Input         []KeyValue         `json:"input" jsonschema_description:"Parameters the task needs; empty when there are none"`
	ScheduledFor  string             `json:"scheduled_for" jsonschema_description:"ISO 8601 UTC time for a deadline or future run; empty when there is none"`
	Watcher       *WatcherSpec       `json:"watcher" jsonschema:"nullable" jsonschema_description:"Rule that routes future matching events to this task"`
}

type WatcherSpec struct {
	ProviderName string     `json:"provider_name" jsonschema_description:"Originating provider, e.g. slack"`
	EventType    string     `json:"event_type" jsonschema_description:"Event type to watch, e.g. message.channels, or * for any"`
	MatchQuery   []KeyValue `json:"match_query" jsonschema_description:"JSONPath expressions (key) and the string each must equal (value) in the provider payload"`
	Condition    string     `json:"condition" jsonschema_description:"Boolean expression over canonical event fields; empty when there is none"`
}

// KeyValue stands in for a string map, which strict schemas cannot express.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// KeyValueMap folds pairs into a map. Pairs with an empty key are dropped and
// later keys win. It returns nil when nothing is left.
func KeyValueMap(pairs []KeyValue) map[string]string {
	var m map[string]string
	for _, kv := range pairs {
		if kv.Key == "" {
			continue
		}
		if m == nil {
			m = make(map[string]string, len(pairs))
		}
		m[kv.Key] = kv.Value
	}
	return m
}

// ScheduledTime parses ScheduledFor; an absent or unparseable value yields nil.
func (t *NewTaskDetails) ScheduledTime() *time.Time {
	if t.ScheduledFor == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, t.ScheduledFor)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

type TaskDetailInput struct {
	CleanText string
	Provider  domain.Provider
	EventType string
	Sender    domain.Sender
	Now       time.Time
}

var taskDetailsSchema = llm.GenerateSchema[TaskDetails]()

const (
	taskDetailStage         = "task_details"
	taskDetailPromptVersion = "v1"
)

// TaskDetailGenerator turns a message already judged to be a new task into
// a structured task and an optional watcher.
type TaskDetailGenerator struct {
	llm   llm.Client
	evals store.LLMEvalStore
}

func NewTaskDetailGenerator(client llm.Client, evals store.LLMEvalStore) *TaskDetailGenerator {
	return &TaskDetailGenerator{llm: client, evals: evals}
}

func (g *TaskDetailGenerator) Generate(ctx context.Context, in TaskDetailInput) (*TaskDetails, error) {
	prompt, err := buildTaskDetailPrompt(in)
	if err != nil {
		return nil, err
	}

	var result TaskDetails
	start := time.Now()
	resp, err := chatWithRetry(ctx, g.llm, taskDetailStage, llm.Request{
		SystemPrompt: taskDetailSystemPrompt,
		UserPrompt:   prompt,
		SchemaName:   "task_details",
		Schema:       taskDetailsSchema,
		Temperature:  llm.Temp(llmTemperature),
	}, &result)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	logEval(ctx, g.evals, g.llm.Model(), evalRecord{
		stage:         taskDetailStage,
		promptVersion: taskDetailPromptVersion,
		input:         prompt,
		output:        result,
		latency:       latency,
		resp:          resp,
	})

	if result.NewTask != nil {
		normalizeTaskDetails(result.NewTask)
	}

	slog.InfoContext(ctx, "task details generated",
		"has_task", result.NewTask != nil,
		"has_watcher", result.NewTask != nil && result.NewTask.Watcher != nil,
		"latency_ms", latency.Milliseconds())

	return &result, nil
}

// normalizeTaskDetails fills defaults the model is allowed to omit.
func normalizeTaskDetails(t *NewTaskDetails) {
	t.Name, _ = SanitizeTaskName(t.Name)
	switch t.Priority {
	case model.TaskPriorityLow, model.TaskPriorityMedium, model.TaskPriorityHigh, model.TaskPriorityCritical:
	default:
		t.Priority = model.TaskPriorityMedium
	}

	switch {
	case t.Watcher != nil:
		t.TaskType = model.TaskTypeWatcher
	case t.ScheduledTime() != nil:
		t.TaskType = model.TaskTypeScheduled
	case !t.TaskType.Valid():
		t.TaskType = model.TaskTypeDefault
	}
}

func buildTaskDetailPrompt(in TaskDetailInput) (string, error) {
	sender, err := json.Marshal(in.Sender)
	if err != nil {
		return "", fmt.Errorf("encoding sender: %w", err)
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	var sb strings.Builder
	sb.WriteString("A new task request has arrived.\n\n")
	sb.WriteString("## Request\n")
	sb.WriteString(fmt.Sprintf("- From: %s\n", sender))
	sb.WriteString(fmt.Sprintf("- Source: %s (%s)\n", in.Provider, in.EventType))
	sb.WriteString(fmt.Sprintf("- Message: %q\n", in.CleanText))
	if mentions := mapper.ExtractMentions(in.CleanText); len(mentions) > 0 {
		sb.WriteString(fmt.Sprintf("- Mentioned: @%s\n", strings.Join(mentions, ", @")))
	}
	sb.WriteString("\n")
	sb.WriteString("## Reference\n")
	sb.WriteString(fmt.Sprintf("- Current time: %s\n\n", now.UTC().Format(time.RFC3339)))
	sb.WriteString("Generate the new_task object now.")
	return sb.String(), nil
}

const taskDetailSystemPrompt = `You are an executive assistant. The message you receive has already been confirmed to be a new task. Extract its details into a task object.

## Fields

- name: Short, active headline. Good: "Draft Q4 sales report". Bad: "user wants a report".
- ai_description: Full description of the goal with all context. Mention who asked (the sender) and where it came from (provider and event type).
- priority:
  - critical: outages or emergencies
  - high: explicit urgency ("urgent", "ASAP", "by end of day")
  - medium: standard actionable requests (the default)
  - low: casual, non-urgent reminders
- task_type: default, unless the task has a watcher (watcher) or a scheduled_for time (scheduled).
- input: Concrete parameters found in the message as key/value pairs. "order keyboard K860 for user 558" -> [{"key": "item", "value": "keyboard"}, {"key": "model", "value": "K860"}, {"key": "user_id", "value": "558"}]. Use [] for plain requests.
- scheduled_for: Only when the user gives a deadline or future time. Compute an exact ISO 8601 UTC timestamp from the current time. Recurring schedules are not supported; use the next occurrence only. Otherwise "".
- watcher: Only when the user explicitly asks for an automated rule ("Every time...", "When a new...", "If this happens, then..."); otherwise null. Each match_query entry pairs a JSONPath expression into the provider payload (key) with the expected string value (value). condition is "" unless the rule needs one.

## Check before answering

- name is a clear summary
- ai_description includes the sender
- priority is justified by the wording
- scheduled_for, when set, is in the future`
