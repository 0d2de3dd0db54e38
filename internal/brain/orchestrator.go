package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
	"basegraph.app/hookrelay/internal/watcher"
)

const defaultAITimeout = 30 * time.Second

type Classifier interface {
	Classify(ctx context.Context, cleanText string) (*PreClassification, error)
}

type DetailGenerator interface {
	Generate(ctx context.Context, in TaskDetailInput) (*TaskDetails, error)
}

// WatchedTaskFinder returns tasks whose watchers match the event for one bot.
type WatchedTaskFinder interface {
	FindWatchedTasks(ctx context.Context, event *domain.WebhookEvent, microfoxID string) ([]model.Task, error)
}

type OutcomeKind string

const (
	OutcomeOK       OutcomeKind = "ok"
	OutcomeDegraded OutcomeKind = "degraded"
)

// Outcome is how far classification got for one connection. A degraded
// outcome means an AI step failed and the branch fell back to the default
// output.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	Decision Decision    `json:"decision,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

func degraded(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeDegraded, Reason: fmt.Sprintf(format, args...)}
}

func (o Outcome) String() string {
	if o.Kind == OutcomeDegraded {
		return "degraded: " + o.Reason
	}
	if o.Reason == "" {
		return string(o.Decision)
	}
	return fmt.Sprintf("%s (%s)", o.Decision, o.Reason)
}

func (o Outcome) metricLabel() string {
	switch {
	case o.Kind == OutcomeDegraded:
		return string(OutcomeDegraded)
	case o.Decision == "":
		return "none"
	}
	return string(o.Decision)
}

// OrchestrationOutput describes what happened for one bot connection.
type OrchestrationOutput struct {
	IsNewTask           bool                 `json:"isNewTask"`
	IsOldTask           bool                 `json:"isOldTask"`
	IsTaskImportant     bool                 `json:"isTaskImportant"`
	Classified          bool                 `json:"classified"`
	WebhookEvent        *domain.WebhookEvent `json:"webhook_event"`
	DBEvent             *model.EventLog      `json:"db_event"`
	NewTask             *model.Task          `json:"newTask,omitempty"`
	WatchedTasks        []model.Task         `json:"watchedTasks,omitempty"`
	MicrofoxConnections []domain.Connection  `json:"microfox_connections"`
	Channel             *domain.Channel      `json:"channel,omitempty"`
	ReactAccess         bool                 `json:"react_access"`
	Outcome             Outcome              `json:"outcome"`
	// Err is a persistence failure in this branch. AI failures never set it.
	Err error `json:"-"`
}

type OrchestratorConfig struct {
	AITimeout time.Duration
}

// TaskOrchestrator fans one envelope out to every bot connection it names,
// classifies the event per connection, and persists new tasks.
type TaskOrchestrator struct {
	cfg        OrchestratorConfig
	classifier Classifier
	generator  DetailGenerator
	watched    WatchedTaskFinder
	eventLogs  store.EventLogStore
	tasks      store.TaskStore
	txRunner   TxRunner
	matcher    *watcher.Matcher
	gate       ImportanceGate
	now        func() time.Time
}

func NewTaskOrchestrator(
	cfg OrchestratorConfig,
	classifier Classifier,
	generator DetailGenerator,
	watched WatchedTaskFinder,
	eventLogs store.EventLogStore,
	tasks store.TaskStore,
	txRunner TxRunner,
) *TaskOrchestrator {
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = defaultAITimeout
	}
	return &TaskOrchestrator{
		cfg:        cfg,
		classifier: classifier,
		generator:  generator,
		watched:    watched,
		eventLogs:  eventLogs,
		tasks:      tasks,
		txRunner:   txRunner,
		matcher:    watcher.NewMatcher(),
		now:        time.Now,
	}
}

// ProcessIncomingEvent returns one output per connection, in connection
// order. Branches run concurrently and never abort each other. The returned
// error joins persistence failures; outputs are returned alongside it.
func (o *TaskOrchestrator) ProcessIncomingEvent(ctx context.Context, env *domain.WebhookEnvelope) ([]OrchestrationOutput, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "hookrelay.brain.orchestrator"})

	if env == nil || env.WebhookEvent == nil {
		slog.WarnContext(ctx, "envelope is missing webhook_event, skipping")
		return []OrchestrationOutput{}, nil
	}
	if len(env.MicrofoxConnections) == 0 {
		slog.WarnContext(ctx, "envelope has no microfox_connections, skipping",
			"event_id", env.WebhookEvent.EventID)
		return []OrchestrationOutput{}, nil
	}

	event := env.WebhookEvent
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:  logger.Ptr(event.EventID),
		Provider: logger.Ptr(string(event.Provider)),
	})

	eventLog, created, err := o.logEvent(ctx, env)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{EventLogID: &eventLog.ID})

	if !created && eventLog.Status == model.EventLogStatusClassified {
		slog.InfoContext(ctx, "event already classified, skipping redelivery")
		return []OrchestrationOutput{}, nil
	}

	important := o.gate.IsImportant(env)
	contextTask := o.loadContextTask(ctx, event)

	slog.InfoContext(ctx, "orchestrating event",
		"connections", len(env.MicrofoxConnections),
		"important", important,
		"created", created)

	outputs := make([]OrchestrationOutput, len(env.MicrofoxConnections))
	var wg sync.WaitGroup
	for i, conn := range env.MicrofoxConnections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outputs[i] = o.runBranch(ctx, env, eventLog, !created, conn, important, contextTask)
		}()
	}
	wg.Wait()

	var errs []error
	for i, out := range outputs {
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", env.MicrofoxConnections[i].MicrofoxBotID, out.Err))
		}
	}

	o.markClassified(ctx, eventLog.ID, env.MicrofoxConnections, outputs)
	return outputs, errors.Join(errs...)
}

func (o *TaskOrchestrator) logEvent(ctx context.Context, env *domain.WebhookEnvelope) (*model.EventLog, bool, error) {
	event := env.WebhookEvent

	content, err := json.Marshal(event)
	if err != nil {
		return nil, false, fmt.Errorf("encoding event: %w", err)
	}
	metadata, err := json.Marshal(struct {
		Channel         *domain.Channel     `json:"channel,omitempty"`
		ReactAccess     *bool               `json:"react_access,omitempty"`
		IsTaskImportant *bool               `json:"is_task_important,omitempty"`
		Connections     []domain.Connection `json:"microfox_connections"`
	}{env.Channel, env.ReactAccess, env.IsTaskImportant, env.MicrofoxConnections})
	if err != nil {
		return nil, false, fmt.Errorf("encoding event metadata: %w", err)
	}

	ids := make([]string, len(env.MicrofoxConnections))
	for i, c := range env.MicrofoxConnections {
		ids[i] = c.MicrofoxBotID
	}

	eventLog, created, err := o.eventLogs.LogEvent(ctx, store.LogEventInput{
		MicrofoxIDs:     ids,
		ProviderName:    string(event.Provider),
		ProviderEventID: event.EventID,
		EventType:       event.EventType,
		Content:         content,
		Metadata:        metadata,
	})
	if err != nil {
		return nil, false, fmt.Errorf("logging event: %w", err)
	}
	return eventLog, created, nil
}

// loadContextTask resolves event.task_id, set when a provider thread is
// already bound to a task.
func (o *TaskOrchestrator) loadContextTask(ctx context.Context, event *domain.WebhookEvent) *model.Task {
	if event.Event.TaskID == "" {
		return nil
	}
	taskID, err := uuid.Parse(event.Event.TaskID)
	if err != nil {
		slog.WarnContext(ctx, "ignoring malformed task_id", "task_id", event.Event.TaskID)
		return nil
	}
	task, err := o.tasks.GetByID(ctx, taskID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "failed to load context task", "task_id", taskID, "error", err)
		}
		return nil
	}
	return task
}

func (o *TaskOrchestrator) baseOutput(env *domain.WebhookEnvelope, eventLog *model.EventLog, conn domain.Connection, important bool) OrchestrationOutput {
	channel := env.Channel
	if channel == nil {
		c := env.WebhookEvent.Channel
		channel = &c
	}
	reactAccess := conn.ReactAccess
	if env.ReactAccess != nil {
		reactAccess = *env.ReactAccess
	}
	return OrchestrationOutput{
		IsTaskImportant:     important,
		WebhookEvent:        env.WebhookEvent,
		DBEvent:             eventLog,
		MicrofoxConnections: []domain.Connection{conn},
		Channel:             channel,
		ReactAccess:         reactAccess,
		Outcome:             Outcome{Kind: OutcomeOK},
	}
}

func (o *TaskOrchestrator) runBranch(
	ctx context.Context,
	env *domain.WebhookEnvelope,
	eventLog *model.EventLog,
	redelivered bool,
	conn domain.Connection,
	important bool,
	contextTask *model.Task,
) (out OrchestrationOutput) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{MicrofoxID: logger.Ptr(conn.MicrofoxBotID)})
	sc := logger.StartSpan(ctx, "brain.orchestrate_connection")
	defer sc.End()
	ctx = sc.Context()

	start := time.Now()
	out = o.baseOutput(env, eventLog, conn, important)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "orchestration branch panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			out = o.baseOutput(env, eventLog, conn, important)
			out.Outcome = degraded("panic: %v", r)
		}
		if out.Err != nil {
			sc.Fail(out.Err)
		}
		metrics.Classifications.WithLabelValues(out.Outcome.metricLabel()).Inc()
		metrics.BranchDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	if redelivered && o.reuseExistingTask(ctx, eventLog, conn, &out) {
		return out
	}
	o.processConnection(ctx, env, eventLog, conn, contextTask, &out)
	return out
}

// reuseExistingTask fills out from the task an earlier delivery of the same
// event already created for conn. It reports whether the branch is done.
func (o *TaskOrchestrator) reuseExistingTask(ctx context.Context, eventLog *model.EventLog, conn domain.Connection, out *OrchestrationOutput) bool {
	task, err := o.tasks.GetByTriggeringEvent(ctx, eventLog.ID, conn.MicrofoxBotID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false
	case err != nil:
		out.Err = fmt.Errorf("looking up existing task: %w", err)
		out.Outcome = degraded("existing task lookup failed")
		return true
	}
	slog.InfoContext(ctx, "task already created by an earlier delivery", "task_id", task.ID)
	out.IsNewTask = true
	out.Classified = true
	out.NewTask = task
	out.Outcome = Outcome{Kind: OutcomeOK, Decision: DecisionNewTask, Reason: "task already created"}
	return true
}

func (o *TaskOrchestrator) processConnection(
	ctx context.Context,
	env *domain.WebhookEnvelope,
	eventLog *model.EventLog,
	conn domain.Connection,
	contextTask *model.Task,
	out *OrchestrationOutput,
) {
	event := env.WebhookEvent

	watched, err := o.watched.FindWatchedTasks(ctx, event, conn.MicrofoxBotID)
	if err != nil {
		out.Err = fmt.Errorf("finding watched tasks: %w", err)
		out.Outcome = degraded("watched task lookup failed")
		return
	}
	if contextTask != nil && contextTask.MicrofoxID == conn.MicrofoxBotID && !containsTask(watched, contextTask.ID) {
		watched = append(watched, *contextTask)
	}
	if len(watched) > 0 {
		slog.InfoContext(ctx, "event continues watched tasks", "watched_count", len(watched))
		out.IsOldTask = true
		out.WatchedTasks = watched
		out.Outcome = Outcome{Kind: OutcomeOK, Decision: DecisionOldTask, Reason: "matched watched task"}
		return
	}

	text := strings.TrimSpace(mapper.StripLeadingMention(event.CleanText))
	if text == "" {
		out.Outcome = Outcome{Kind: OutcomeOK, Decision: DecisionIrrelevant, Reason: "no message text"}
		return
	}

	classification, err := o.classify(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "pre-classification failed, degrading", "error", err)
		out.Outcome = degraded("pre-classification failed: %v", err)
		return
	}
	out.Outcome = Outcome{Kind: OutcomeOK, Decision: classification.Decision, Reason: classification.Reason}

	switch classification.Decision {
	case DecisionOldTask:
		out.IsOldTask = true
	case DecisionNewTask:
		out.IsNewTask = true
		if !out.IsTaskImportant {
			slog.InfoContext(ctx, "new task not important, leaving unclassified")
			return
		}

		details, err := o.generate(ctx, TaskDetailInput{
			CleanText: text,
			Provider:  event.Provider,
			EventType: event.EventType,
			Sender:    event.Sender,
			Now:       o.now(),
		})
		if err != nil {
			slog.WarnContext(ctx, "task detail generation failed, degrading", "error", err)
			out.Outcome = degraded("task detail generation failed: %v", err)
			return
		}
		if details.NewTask == nil {
			out.Outcome = degraded("task detail generation returned no task")
			return
		}

		task, created, err := o.createTask(ctx, conn, event, eventLog, text, details)
		if err != nil {
			out.Err = err
			out.Outcome = degraded("persisting task failed")
			return
		}
		out.NewTask = task
		out.Classified = true
		if created {
			metrics.TasksCreated.WithLabelValues(string(event.Provider)).Inc()
		}
	}
}

func (o *TaskOrchestrator) classify(ctx context.Context, text string) (*PreClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
	defer cancel()
	return o.classifier.Classify(ctx, text)
}

func (o *TaskOrchestrator) generate(ctx context.Context, in TaskDetailInput) (*TaskDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
	defer cancel()
	return o.generator.Generate(ctx, in)
}

type taskMetadata struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Channel   domain.Channel `json:"channel"`
	Sender    domain.Sender  `json:"sender"`
	Notes     string         `json:"notes,omitempty"`
}

// createTask writes the task and its optional watcher in one transaction.
// When a concurrent delivery already wrote the task for this event and bot,
// that task is returned with created false.
func (o *TaskOrchestrator) createTask(
	ctx context.Context,
	conn domain.Connection,
	event *domain.WebhookEvent,
	eventLog *model.EventLog,
	text string,
	details *TaskDetails,
) (task *model.Task, created bool, err error) {
	nt := details.NewTask

	spec := nt.Watcher
	var matchQuery map[string]string
	if spec != nil {
		matchQuery = KeyValueMap(spec.MatchQuery)
		if err := o.matcher.Validate(matchQuery, spec.Condition); err != nil {
			slog.WarnContext(ctx, "dropping invalid watcher from task details", "error", err)
			spec = nil
		}
	}
	taskType := nt.TaskType
	if spec == nil && taskType == model.TaskTypeWatcher {
		taskType = model.TaskTypeDefault
	}

	name := nt.Name
	if name == "" {
		name = logger.Truncate(text, 80)
	}

	var input json.RawMessage
	if params := KeyValueMap(nt.Input); len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, false, fmt.Errorf("encoding task input: %w", err)
		}
		input = b
	}
	metadata, err := json.Marshal(taskMetadata{
		EventID:   event.EventID,
		EventType: event.EventType,
		Channel:   event.Channel,
		Sender:    event.Sender,
		Notes:     details.Notes,
	})
	if err != nil {
		return nil, false, fmt.Errorf("encoding task metadata: %w", err)
	}

	var authorized []string
	if event.Sender.ID != "" {
		authorized = []string{event.Sender.ID}
	}

	err = o.txRunner.WithTx(ctx, func(stores StoreProvider) error {
		written, err := stores.Tasks().Create(ctx, store.CreateTaskInput{
			MicrofoxID:        conn.MicrofoxBotID,
			Name:              name,
			AIDescription:     nt.AIDescription,
			TaskType:          taskType,
			Priority:          nt.Priority,
			ProviderName:      string(event.Provider),
			TriggeringEventID: &eventLog.ID,
			AuthorizedUsers:   authorized,
			Input:             input,
			Metadata:          metadata,
			ScheduledFor:      nt.ScheduledTime(),
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			existing, err := stores.Tasks().GetByTriggeringEvent(ctx, eventLog.ID, conn.MicrofoxBotID)
			if err != nil {
				return fmt.Errorf("loading existing task: %w", err)
			}
			task = existing
			return nil
		}
		if err != nil {
			return fmt.Errorf("creating task: %w", err)
		}
		task, created = written, true

		if spec == nil {
			return nil
		}
		providerName := spec.ProviderName
		if providerName == "" {
			providerName = string(event.Provider)
		}
		eventType := spec.EventType
		if eventType == "" {
			eventType = event.EventType
		}
		if _, err := stores.Watchers().Create(ctx, store.CreateEventWatcherInput{
			TaskID:         written.ID,
			MicrofoxID:     conn.MicrofoxBotID,
			ProviderName:   providerName,
			EventType:      eventType,
			MatchQuery:     matchQuery,
			Condition:      spec.Condition,
			TeamID:         nonEmpty(event.ProviderInfo.Team.ID),
			OrganizationID: nonEmpty(event.ProviderInfo.Org.ID),
		}); err != nil {
			return fmt.Errorf("creating event watcher: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	ctx = logger.Annotate(ctx, logger.LogFields{TaskID: logger.Ptr(task.ID.String())})
	if !created {
		slog.InfoContext(ctx, "task already created by a concurrent delivery")
		return task, false, nil
	}
	slog.InfoContext(ctx, "task created",
		"name", task.Name,
		"priority", task.Priority,
		"task_type", task.TaskType,
		"with_watcher", spec != nil)

	return task, true, nil
}

func (o *TaskOrchestrator) markClassified(ctx context.Context, eventLogID int64, conns []domain.Connection, outputs []OrchestrationOutput) {
	status := model.EventLogStatusClassified
	notes := make([]string, len(outputs))
	for i, out := range outputs {
		if out.Err != nil || out.Outcome.Kind == OutcomeDegraded {
			status = model.EventLogStatusFailed
		}
		notes[i] = fmt.Sprintf("%s: %s", conns[i].MicrofoxBotID, out.Outcome)
	}

	if err := o.eventLogs.MarkClassified(ctx, eventLogID, status, strings.Join(notes, "; ")); err != nil {
		slog.ErrorContext(ctx, "failed to mark event log classified", "status", status, "error", err)
	}
}

func containsTask(tasks []model.Task, id uuid.UUID) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
