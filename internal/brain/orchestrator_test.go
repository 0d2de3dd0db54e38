package brain_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/brain"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
)

func slackMention() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		EventID:   "slack-Ev100",
		BaseType:  domain.BaseTypeMessage,
		EventType: "message.channels",
		Timestamp: 1704164645,
		Text:      "<@U0BOT> remind me to submit the Q4 report",
		CleanText: "@microfox remind me to submit the Q4 report",
		Provider:  domain.ProviderSlack,
		Bot:       domain.Bot{ID: "U0BOT", AppID: "A1", IsBotMentioned: true},
		ProviderInfo: domain.ProviderInfo{
			Team: domain.Ref{ID: "T1"},
		},
		Sender:  domain.Sender{ID: "U42", Name: "dave"},
		Channel: domain.Channel{ID: "C1", Type: domain.ChannelPublicChannel},
		Event:   domain.EventDetail{ID: "Ev100", Type: "message", TS: "1704164645.000100"},
	}
}

func connections(ids ...string) []domain.Connection {
	conns := make([]domain.Connection, len(ids))
	for i, id := range ids {
		conns[i] = domain.Connection{MicrofoxBotID: id, Provider: domain.ProviderSlack, BotID: "U0BOT", TeamID: "T1"}
	}
	return conns
}

func boolPtr(b bool) *bool { return &b }

var _ = Describe("TaskOrchestrator", func() {
	var (
		classifier   *mockClassifier
		generator    *mockGenerator
		finder       *mockWatchedFinder
		eventLogs    *mockEventLogStore
		tasks        *mockTaskStore
		watchers     *mockWatcherStore
		orchestrator *brain.TaskOrchestrator
		ctx          context.Context
	)

	decide := func(d brain.Decision) func(context.Context, string) (*brain.PreClassification, error) {
		return func(context.Context, string) (*brain.PreClassification, error) {
			return &brain.PreClassification{Decision: d, Reason: "test"}, nil
		}
	}

	BeforeEach(func() {
		classifier = &mockClassifier{}
		generator = &mockGenerator{}
		finder = &mockWatchedFinder{}
		eventLogs = &mockEventLogStore{}
		tasks = &mockTaskStore{}
		watchers = &mockWatcherStore{}
		orchestrator = brain.NewTaskOrchestrator(
			brain.OrchestratorConfig{AITimeout: time.Second},
			classifier,
			generator,
			finder,
			eventLogs,
			tasks,
			&mockTxRunner{tasks: tasks, watchers: watchers},
		)
		ctx = context.Background()
	})

	Describe("malformed envelopes", func() {
		It("returns no outputs and writes nothing without a webhook_event", func() {
			outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
				MicrofoxConnections: connections("mfx-1"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(outputs).To(BeEmpty())
			Expect(outputs).NotTo(BeNil())
			Expect(eventLogs.writes()).To(Equal(0))
			Expect(classifier.calls()).To(Equal(0))
		})

		It("returns no outputs and writes nothing without connections", func() {
			outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
				WebhookEvent: slackMention(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(outputs).To(BeEmpty())
			Expect(eventLogs.writes()).To(Equal(0))
		})

		It("tolerates a nil envelope", func() {
			outputs, err := orchestrator.ProcessIncomingEvent(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(outputs).To(BeEmpty())
		})
	})

	It("logs the event once for all connections", func() {
		_, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1", "mfx-2", "mfx-3"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(eventLogs.inputs).To(HaveLen(1))
		in := eventLogs.inputs[0]
		Expect(in.MicrofoxIDs).To(Equal([]string{"mfx-1", "mfx-2", "mfx-3"}))
		Expect(in.ProviderName).To(Equal("slack"))
		Expect(in.ProviderEventID).To(Equal("slack-Ev100"))
		Expect(in.EventType).To(Equal("message.channels"))
	})

	It("classifies the mention-stripped text", func() {
		_, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(classifier.texts).To(Equal([]string{"remind me to submit the Q4 report"}))
	})

	It("creates a task for an important new_task", func() {
		classifier.classify = decide(brain.DecisionNewTask)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(1))

		out := outputs[0]
		Expect(out.IsNewTask).To(BeTrue())
		Expect(out.IsOldTask).To(BeFalse())
		Expect(out.IsTaskImportant).To(BeTrue())
		Expect(out.Classified).To(BeTrue())
		Expect(out.NewTask).NotTo(BeNil())
		Expect(out.NewTask.MicrofoxID).To(Equal("mfx-1"))
		Expect(out.DBEvent.ID).To(Equal(int64(101)))
		Expect(out.Outcome.Kind).To(Equal(brain.OutcomeOK))
		Expect(out.Outcome.Decision).To(Equal(brain.DecisionNewTask))

		Expect(tasks.created).To(HaveLen(1))
		created := tasks.created[0]
		Expect(created.Name).To(Equal("Draft report"))
		Expect(created.Priority).To(Equal(model.TaskPriorityHigh))
		Expect(created.ProviderName).To(Equal("slack"))
		Expect(*created.TriggeringEventID).To(Equal(int64(101)))
		Expect(created.AuthorizedUsers).To(Equal([]string{"U42"}))
		Expect(watchers.created).To(BeEmpty())

		Expect(generator.inputs).To(HaveLen(1))
		Expect(generator.inputs[0].CleanText).To(Equal("remind me to submit the Q4 report"))
		Expect(generator.inputs[0].Sender.ID).To(Equal("U42"))

		Expect(eventLogs.marks).To(HaveLen(1))
		Expect(eventLogs.marks[0].status).To(Equal(model.EventLogStatusClassified))
		Expect(eventLogs.marks[0].notes).To(ContainSubstring("mfx-1: new_task"))
	})

	It("creates the watcher alongside the task", func() {
		classifier.classify = decide(brain.DecisionNewTask)
		generator.generate = func(context.Context, brain.TaskDetailInput) (*brain.TaskDetails, error) {
			return &brain.TaskDetails{NewTask: &brain.NewTaskDetails{
				Name:     "Watch channel",
				Priority: model.TaskPriorityLow,
				TaskType: model.TaskTypeWatcher,
				Watcher: &brain.WatcherSpec{
					EventType:  "message.channels",
					MatchQuery: []brain.KeyValue{{Key: "$.event.channel", Value: "C1"}},
				},
			}}, nil
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(watchers.created).To(HaveLen(1))
		w := watchers.created[0]
		Expect(w.TaskID).To(Equal(outputs[0].NewTask.ID))
		Expect(w.MicrofoxID).To(Equal("mfx-1"))
		Expect(w.ProviderName).To(Equal("slack"))
		Expect(*w.TeamID).To(Equal("T1"))
		Expect(w.OrganizationID).To(BeNil())
		Expect(tasks.created[0].TaskType).To(Equal(model.TaskTypeWatcher))
	})

	It("drops an invalid watcher but keeps the task", func() {
		classifier.classify = decide(brain.DecisionNewTask)
		generator.generate = func(context.Context, brain.TaskDetailInput) (*brain.TaskDetails, error) {
			return &brain.TaskDetails{NewTask: &brain.NewTaskDetails{
				Name:     "Watch channel",
				TaskType: model.TaskTypeWatcher,
				Watcher:  &brain.WatcherSpec{EventType: "message.channels"},
			}}, nil
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].Classified).To(BeTrue())
		Expect(watchers.created).To(BeEmpty())
		Expect(tasks.created[0].TaskType).To(Equal(model.TaskTypeDefault))
	})

	It("records an unimportant new_task without creating it", func() {
		classifier.classify = decide(brain.DecisionNewTask)
		event := slackMention()
		event.Bot.IsBotMentioned = false

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        event,
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].IsNewTask).To(BeTrue())
		Expect(outputs[0].IsTaskImportant).To(BeFalse())
		Expect(outputs[0].Classified).To(BeFalse())
		Expect(tasks.createdCount()).To(Equal(0))
		Expect(generator.inputs).To(BeEmpty())
	})

	It("lets the envelope override importance", func() {
		classifier.classify = decide(brain.DecisionNewTask)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
			IsTaskImportant:     boolPtr(false),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].IsTaskImportant).To(BeFalse())
		Expect(tasks.createdCount()).To(Equal(0))
	})

	It("reports old_task without creating anything", func() {
		classifier.classify = decide(brain.DecisionOldTask)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(1))
		Expect(outputs[0].IsOldTask).To(BeTrue())
		Expect(outputs[0].IsNewTask).To(BeFalse())
		Expect(outputs[0].Classified).To(BeFalse())
		Expect(tasks.createdCount()).To(Equal(0))
		Expect(generator.inputs).To(BeEmpty())
	})

	It("returns the default output for irrelevant events", func() {
		classifier.classify = decide(brain.DecisionIrrelevant)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].IsNewTask).To(BeFalse())
		Expect(outputs[0].IsOldTask).To(BeFalse())
		Expect(outputs[0].Classified).To(BeFalse())
		Expect(outputs[0].Channel).To(Equal(&domain.Channel{ID: "C1", Type: domain.ChannelPublicChannel}))
	})

	It("short-circuits to old_task when watchers match", func() {
		watched := model.Task{ID: uuid.Must(uuid.NewV7()), MicrofoxID: "mfx-2", Name: "Follow PR"}
		finder.byMicrofox = map[string][]model.Task{"mfx-2": {watched}}
		classifier.classify = decide(brain.DecisionNewTask)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1", "mfx-2"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(2))
		Expect(outputs[1].IsOldTask).To(BeTrue())
		Expect(outputs[1].WatchedTasks).To(ConsistOf(watched))
		Expect(outputs[0].IsNewTask).To(BeTrue())
		Expect(classifier.calls()).To(Equal(1))
	})

	It("treats a bound task_id as a continuation", func() {
		bound := &model.Task{ID: uuid.Must(uuid.NewV7()), MicrofoxID: "mfx-1"}
		tasks.byID = map[uuid.UUID]*model.Task{bound.ID: bound}
		event := slackMention()
		event.Event.TaskID = bound.ID.String()

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        event,
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].IsOldTask).To(BeTrue())
		Expect(outputs[0].WatchedTasks).To(HaveLen(1))
		Expect(classifier.calls()).To(Equal(0))
	})

	It("isolates a failing branch from its siblings", func() {
		callCount := 0
		classifier.classify = func(context.Context, string) (*brain.PreClassification, error) {
			classifier.mu.Lock()
			callCount++
			first := callCount == 1
			classifier.mu.Unlock()
			if first {
				return nil, errors.New("model unavailable")
			}
			return &brain.PreClassification{Decision: brain.DecisionNewTask}, nil
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1", "mfx-2", "mfx-3"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(3))

		var degraded, created int
		for i, out := range outputs {
			Expect(out.MicrofoxConnections[0].MicrofoxBotID).To(Equal([]string{"mfx-1", "mfx-2", "mfx-3"}[i]))
			switch {
			case out.Outcome.Kind == brain.OutcomeDegraded:
				degraded++
				Expect(out.Classified).To(BeFalse())
				Expect(out.Outcome.Reason).To(ContainSubstring("model unavailable"))
			case out.Classified:
				created++
			}
		}
		Expect(degraded).To(Equal(1))
		Expect(created).To(Equal(2))
		Expect(eventLogs.marks[0].status).To(Equal(model.EventLogStatusFailed))
	})

	It("recovers a panicking branch", func() {
		classifier.classify = func(_ context.Context, _ string) (*brain.PreClassification, error) {
			panic("boom")
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1", "mfx-2"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(2))
		for _, out := range outputs {
			Expect(out.Outcome.Kind).To(Equal(brain.OutcomeDegraded))
			Expect(out.Outcome.Reason).To(ContainSubstring("boom"))
		}
	})

	It("degrades when detail generation fails", func() {
		classifier.classify = decide(brain.DecisionNewTask)
		generator.generate = func(context.Context, brain.TaskDetailInput) (*brain.TaskDetails, error) {
			return nil, errors.New("timeout")
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].IsNewTask).To(BeTrue())
		Expect(outputs[0].Classified).To(BeFalse())
		Expect(outputs[0].Outcome.Kind).To(Equal(brain.OutcomeDegraded))
	})

	It("bounds AI calls with the configured timeout", func() {
		orchestrator = brain.NewTaskOrchestrator(
			brain.OrchestratorConfig{AITimeout: 20 * time.Millisecond},
			classifier, generator, finder, eventLogs, tasks,
			&mockTxRunner{tasks: tasks, watchers: watchers},
		)
		classifier.classify = func(ctx context.Context, _ string) (*brain.PreClassification, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs[0].Outcome.Kind).To(Equal(brain.OutcomeDegraded))
		Expect(outputs[0].Outcome.Reason).To(ContainSubstring("deadline exceeded"))
	})

	It("returns persistence errors with the outputs", func() {
		classifier.classify = decide(brain.DecisionNewTask)
		tasks.createErr = errors.New("connection refused")

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1", "mfx-2"),
		})
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
		Expect(err.Error()).To(ContainSubstring("connection mfx-1"))
		Expect(outputs).To(HaveLen(2))
		Expect(outputs[0].Err).To(HaveOccurred())
		Expect(outputs[0].Classified).To(BeFalse())
		Expect(eventLogs.marks[0].status).To(Equal(model.EventLogStatusFailed))
	})

	It("fails before fan-out when the event cannot be logged", func() {
		eventLogs.logErr = errors.New("db down")

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).To(MatchError(ContainSubstring("logging event")))
		Expect(outputs).To(BeNil())
		Expect(classifier.calls()).To(Equal(0))
	})

	It("skips redeliveries of classified events", func() {
		eventLogs.existing = &model.EventLog{ID: 55, Status: model.EventLogStatusClassified}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(BeEmpty())
		Expect(classifier.calls()).To(Equal(0))
	})

	It("reprocesses redeliveries of failed events", func() {
		eventLogs.existing = &model.EventLog{ID: 55, Status: model.EventLogStatusFailed}

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(outputs).To(HaveLen(1))
		Expect(outputs[0].DBEvent.ID).To(Equal(int64(55)))
	})

	Describe("task idempotency", func() {
		BeforeEach(func() {
			classifier.classify = decide(brain.DecisionNewTask)
		})

		It("does not duplicate tasks when a partially failed event is redelivered", func() {
			tasks.failOnce = map[string]error{"mfx-2": errors.New("deadlock detected")}
			env := &domain.WebhookEnvelope{
				WebhookEvent:        slackMention(),
				MicrofoxConnections: connections("mfx-1", "mfx-2"),
			}

			_, err := orchestrator.ProcessIncomingEvent(ctx, env)
			Expect(err).To(MatchError(ContainSubstring("deadlock detected")))
			Expect(eventLogs.marks[0].status).To(Equal(model.EventLogStatusFailed))
			first := tasks.byTrigger[triggerKey{eventLogID: 101, microfoxID: "mfx-1"}]
			Expect(first).NotTo(BeNil())

			eventLogs.existing = &model.EventLog{ID: 101, Status: model.EventLogStatusFailed}
			outputs, err := orchestrator.ProcessIncomingEvent(ctx, env)
			Expect(err).NotTo(HaveOccurred())

			Expect(tasks.createdFor("mfx-1")).To(Equal(1))
			Expect(tasks.createdFor("mfx-2")).To(Equal(1))
			Expect(outputs[0].Classified).To(BeTrue())
			Expect(outputs[0].NewTask.ID).To(Equal(first.ID))
			Expect(outputs[0].Outcome.Reason).To(Equal("task already created"))
			Expect(outputs[1].Classified).To(BeTrue())
			Expect(eventLogs.marks[1].status).To(Equal(model.EventLogStatusClassified))
			Expect(classifier.calls()).To(Equal(3))
		})

		It("returns the task a concurrent delivery already wrote", func() {
			existing := &model.Task{ID: uuid.Must(uuid.NewV7()), MicrofoxID: "mfx-1"}
			tasks.byTrigger = map[triggerKey]*model.Task{{eventLogID: 101, microfoxID: "mfx-1"}: existing}
			generator.generate = func(context.Context, brain.TaskDetailInput) (*brain.TaskDetails, error) {
				return &brain.TaskDetails{NewTask: &brain.NewTaskDetails{
					Name:     "Watch channel",
					TaskType: model.TaskTypeWatcher,
					Watcher: &brain.WatcherSpec{
						EventType:  "message.channels",
						MatchQuery: []brain.KeyValue{{Key: "$.event.channel", Value: "C1"}},
					},
				}}, nil
			}

			outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
				WebhookEvent:        slackMention(),
				MicrofoxConnections: connections("mfx-1"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(outputs[0].Classified).To(BeTrue())
			Expect(outputs[0].NewTask).To(BeIdenticalTo(existing))
			Expect(tasks.created).To(BeEmpty())
			Expect(watchers.created).To(BeEmpty())
		})

		It("degrades when the existing task cannot be looked up", func() {
			eventLogs.existing = &model.EventLog{ID: 101, Status: model.EventLogStatusFailed}
			tasks.lookupErr = errors.New("connection reset")

			outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
				WebhookEvent:        slackMention(),
				MicrofoxConnections: connections("mfx-1"),
			})
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(outputs[0].Outcome.Kind).To(Equal(brain.OutcomeDegraded))
			Expect(classifier.calls()).To(Equal(0))
		})
	})

	It("persists the importance override with the event log", func() {
		_, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
			IsTaskImportant:     boolPtr(false),
		})
		Expect(err).NotTo(HaveOccurred())

		var meta map[string]any
		Expect(json.Unmarshal(eventLogs.inputs[0].Metadata, &meta)).To(Succeed())
		Expect(meta).To(HaveKeyWithValue("is_task_important", false))
	})

	It("serializes outputs with the wire field names", func() {
		classifier.classify = decide(brain.DecisionOldTask)

		outputs, err := orchestrator.ProcessIncomingEvent(ctx, &domain.WebhookEnvelope{
			WebhookEvent:        slackMention(),
			MicrofoxConnections: connections("mfx-1"),
			ReactAccess:         boolPtr(true),
		})
		Expect(err).NotTo(HaveOccurred())

		raw, err := json.Marshal(outputs[0])
		Expect(err).NotTo(HaveOccurred())
		var decoded map[string]any
		Expect(json.Unmarshal(raw, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("isOldTask", true))
		Expect(decoded).To(HaveKeyWithValue("isNewTask", false))
		Expect(decoded).To(HaveKeyWithValue("react_access", true))
		Expect(decoded).To(HaveKey("webhook_event"))
		Expect(decoded).To(HaveKey("db_event"))
		Expect(decoded).To(HaveKey("microfox_connections"))
		Expect(decoded).NotTo(HaveKey("newTask"))
		Expect(decoded["outcome"]).To(HaveKeyWithValue("decision", "old_task"))
	})
})

var _ = Describe("ImportanceGate", func() {
	DescribeTable("IsImportant",
		func(mentioned bool, channel domain.ChannelType, override *bool, want bool) {
			event := slackMention()
			event.Bot.IsBotMentioned = mentioned
			event.Channel.Type = channel
			env := &domain.WebhookEnvelope{WebhookEvent: event, IsTaskImportant: override}
			Expect(brain.ImportanceGate{}.IsImportant(env)).To(Equal(want))
		},
		Entry("mentioned in a public channel", true, domain.ChannelPublicChannel, nil, true),
		Entry("unmentioned in a public channel", false, domain.ChannelPublicChannel, nil, false),
		Entry("direct message", false, domain.ChannelDirectMessage, nil, true),
		Entry("user to user", false, domain.ChannelUserToUser, nil, true),
		Entry("override true", false, domain.ChannelPublicChannel, boolPtr(true), true),
		Entry("override false", true, domain.ChannelDirectMessage, boolPtr(false), false),
	)
})
