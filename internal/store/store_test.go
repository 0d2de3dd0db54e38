package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
)

var _ = Describe("Postgres stores", func() {
	var (
		ctx    context.Context
		stores *store.Stores
		suffix string
	)

	BeforeEach(func() {
		requireDB()
		ctx = context.Background()
		stores = store.NewStores(testDB.Conn())
		suffix = fmt.Sprint(id.New())
	})

	logEvent := func(eventID string) (*model.EventLog, bool) {
		log, created, err := stores.EventLogs().LogEvent(ctx, store.LogEventInput{
			MicrofoxIDs:     []string{"mf-1", "mf-2"},
			ProviderName:    "slack",
			ProviderEventID: eventID,
			EventType:       "message.im",
			Content:         json.RawMessage(`{"text":"hi"}`),
		})
		Expect(err).NotTo(HaveOccurred())
		return log, created
	}

	Describe("EventLogStore", func() {
		It("detects redelivery of the same provider event", func() {
			first, created := logEvent("slack-Ev" + suffix)
			Expect(created).To(BeTrue())
			Expect(first.Status).To(Equal(model.EventLogStatusUnclassified))
			Expect(first.MicrofoxIDs).To(Equal([]string{"mf-1", "mf-2"}))

			again, created := logEvent("slack-Ev" + suffix)
			Expect(created).To(BeFalse())
			Expect(again.ID).To(Equal(first.ID))
		})

		It("marks classification", func() {
			log, _ := logEvent("slack-Ev" + suffix)
			Expect(stores.EventLogs().MarkClassified(ctx, log.ID, model.EventLogStatusClassified, "new_task")).To(Succeed())

			got, err := stores.EventLogs().GetByID(ctx, log.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Status).To(Equal(model.EventLogStatusClassified))
			Expect(got.ClassificationNotes).To(HaveValue(Equal("new_task")))
		})

		It("returns ErrNotFound for a missing row", func() {
			_, err := stores.EventLogs().GetByID(ctx, -1)
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("TaskStore and WatcherStore", func() {
		It("creates a task with a watcher in one transaction", func() {
			log, _ := logEvent("github-issue-" + suffix)
			microfox := "mf-" + suffix

			var task *model.Task
			err := testDB.WithTx(ctx, func(q db.DBTX) error {
				tx := store.NewStores(q)
				var err error
				task, err = tx.Tasks().Create(ctx, store.CreateTaskInput{
					MicrofoxID:        microfox,
					Name:              "Fix login",
					AIDescription:     "Users cannot log in",
					Priority:          model.TaskPriorityHigh,
					ProviderName:      "github",
					TriggeringEventID: &log.ID,
				})
				if err != nil {
					return err
				}
				_, err = tx.Watchers().Create(ctx, store.CreateEventWatcherInput{
					TaskID:       task.ID,
					MicrofoxID:   microfox,
					ProviderName: "github",
					EventType:    "issue_comment.created",
					MatchQuery:   map[string]string{"$.issue.number": "7"},
				})
				return err
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(task.Status.State).To(Equal(model.TaskStateSubmitted))
			Expect(task.TaskType).To(Equal(model.TaskTypeDefault))
			Expect(task.ContextID).To(Equal(task.ID))

			watchers, err := stores.Watchers().ListCandidates(ctx, microfox, "github", "issue_comment.created")
			Expect(err).NotTo(HaveOccurred())
			Expect(watchers).To(HaveLen(1))
			Expect(watchers[0].MatchQuery).To(Equal(map[string]string{"$.issue.number": "7"}))

			tasks, err := stores.Tasks().ListByIDs(ctx, []uuid.UUID{task.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(1))
		})

		It("creates at most one task per triggering event and bot", func() {
			log, _ := logEvent("slack-Ev" + suffix)
			microfox := "mf-" + suffix
			in := store.CreateTaskInput{MicrofoxID: microfox, Name: "once", ProviderName: "slack", TriggeringEventID: &log.ID}

			first, err := stores.Tasks().Create(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			_, err = stores.Tasks().Create(ctx, in)
			Expect(err).To(MatchError(store.ErrAlreadyExists))

			got, err := stores.Tasks().GetByTriggeringEvent(ctx, log.ID, microfox)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(first.ID))

			other := in
			other.MicrofoxID = "mf-other-" + suffix
			_, err = stores.Tasks().Create(ctx, other)
			Expect(err).NotTo(HaveOccurred())

			_, err = stores.Tasks().GetByTriggeringEvent(ctx, log.ID, "mf-missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("rolls back the task when the watcher fails", func() {
			microfox := "mf-" + suffix
			rollback := errors.New("rollback")
			var created *model.Task
			err := testDB.WithTx(ctx, func(q db.DBTX) error {
				var err error
				created, err = store.NewStores(q).Tasks().Create(ctx, store.CreateTaskInput{
					MicrofoxID: microfox, Name: "x", ProviderName: "slack",
				})
				if err != nil {
					return err
				}
				return rollback
			})
			Expect(err).To(MatchError(rollback))

			_, err = stores.Tasks().GetByID(ctx, created.ID)
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("updates state and rejects unknown states", func() {
			task, err := stores.Tasks().Create(ctx, store.CreateTaskInput{MicrofoxID: "mf-" + suffix, Name: "y", ProviderName: "slack"})
			Expect(err).NotTo(HaveOccurred())

			Expect(stores.Tasks().UpdateState(ctx, task.ID, model.TaskStateWorking)).To(Succeed())
			Expect(stores.Tasks().UpdateState(ctx, task.ID, "sleeping")).NotTo(Succeed())

			recent, err := stores.Tasks().ListRecent(ctx, "mf-"+suffix, "slack", 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(1))
			Expect(recent[0].Status.State).To(Equal(model.TaskStateWorking))
		})

		It("ignores expired watchers", func() {
			task, err := stores.Tasks().Create(ctx, store.CreateTaskInput{MicrofoxID: "mf-" + suffix, Name: "z", ProviderName: "slack"})
			Expect(err).NotTo(HaveOccurred())
			past := time.Now().Add(-time.Hour)
			_, err = stores.Watchers().Create(ctx, store.CreateEventWatcherInput{
				TaskID: task.ID, MicrofoxID: "mf-" + suffix, ProviderName: "slack", EventType: "*", ExpiresAt: &past,
			})
			Expect(err).NotTo(HaveOccurred())

			watchers, err := stores.Watchers().ListCandidates(ctx, "mf-"+suffix, "slack", "message.im")
			Expect(err).NotTo(HaveOccurred())
			Expect(watchers).To(BeEmpty())
		})
	})

	Describe("ConnectionStore", func() {
		It("lists connections by bot and team", func() {
			bot := "B" + suffix
			for _, c := range []domain.Connection{
				{MicrofoxBotID: "mf-a", Provider: domain.ProviderSlack, BotID: bot, TeamID: "T1"},
				{MicrofoxBotID: "mf-b", Provider: domain.ProviderSlack, BotID: bot, TeamID: "T2", ReactAccess: true},
				{MicrofoxBotID: "mf-c", Provider: domain.ProviderSlack, BotID: bot},
			} {
				Expect(stores.Connections().Upsert(ctx, c)).To(Succeed())
			}

			conns, err := stores.Connections().ListByBot(ctx, domain.ProviderSlack, bot, "T1")
			Expect(err).NotTo(HaveOccurred())
			ids := make([]string, 0, len(conns))
			for _, c := range conns {
				ids = append(ids, c.MicrofoxBotID)
			}
			Expect(ids).To(ConsistOf("mf-a", "mf-c"))
		})
	})

	Describe("LLMEvalStore", func() {
		It("records a model call", func() {
			latency := 120
			eval, err := stores.LLMEvals().Create(ctx, &model.LLMEval{
				Stage:      "pre_classify",
				InputText:  "hi",
				OutputJSON: []byte(`{"decision":"irrelevant"}`),
				Model:      "gpt-4o-mini",
				LatencyMs:  &latency,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(eval.ID).NotTo(BeZero())
			Expect(eval.LatencyMs).To(HaveValue(Equal(120)))
		})
	})
})
