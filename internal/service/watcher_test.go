package service_test

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/service"
)

var _ = Describe("WatcherService", func() {
	var (
		ctx      context.Context
		watchers *mockWatcherStore
		tasks    *mockTaskStore
		svc      service.WatcherService
		event    *domain.WebhookEvent
		taskA    uuid.UUID
		taskB    uuid.UUID
	)

	BeforeEach(func() {
		ctx = context.Background()
		taskA = uuid.Must(uuid.NewV7())
		taskB = uuid.Must(uuid.NewV7())
		watchers = &mockWatcherStore{}
		tasks = &mockTaskStore{tasks: map[uuid.UUID]model.Task{
			taskA: {ID: taskA, Name: "Review PR"},
			taskB: {ID: taskB, Name: "Triage bug"},
		}}
		svc = service.NewWatcherService(watchers, tasks, nil)

		payload, _ := json.Marshal(map[string]any{
			"action":     "created",
			"issue":      map[string]any{"number": 42},
			"repository": map[string]any{"full_name": "acme/api"},
		})
		event = &domain.WebhookEvent{
			EventID:         "github-issue_comment-9",
			EventType:       "issue_comment.created",
			Provider:        domain.ProviderGitHub,
			Sender:          domain.Sender{ID: "octocat"},
			Channel:         domain.Channel{ID: "42", Type: domain.ChannelIssue},
			OriginalPayload: payload,
		}
	})

	It("loads the tasks whose watchers match", func() {
		watchers.candidates = []model.EventWatcher{
			{ID: 1, TaskID: taskA, MatchQuery: map[string]string{"issue.number": "42", "$.repository.full_name": "acme/api"}},
			{ID: 2, TaskID: taskB, MatchQuery: map[string]string{"issue.number": "7"}},
		}

		found, err := svc.FindWatchedTasks(ctx, event, "mfx-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveLen(1))
		Expect(found[0].ID).To(Equal(taskA))
		Expect(watchers.calls).To(ConsistOf(candidatesCall{microfoxID: "mfx-1", provider: "github", eventType: "issue_comment.created"}))
	})

	It("asks for each task once even when several watchers match it", func() {
		watchers.candidates = []model.EventWatcher{
			{ID: 1, TaskID: taskA, MatchQuery: map[string]string{"issue.number": "42"}},
			{ID: 2, TaskID: taskA, Condition: "[sender.id] == 'octocat'"},
		}

		found, err := svc.FindWatchedTasks(ctx, event, "mfx-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(HaveLen(1))
		Expect(tasks.requested).To(ConsistOf(ConsistOf(taskA)))
	})

	It("skips the task lookup when nothing matches", func() {
		watchers.candidates = []model.EventWatcher{{ID: 3, TaskID: taskB}}

		found, err := svc.FindWatchedTasks(ctx, event, "mfx-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeEmpty())
		Expect(tasks.requested).To(BeEmpty())
	})

	It("wraps store failures", func() {
		watchers.listErr = errors.New("timeout")
		_, err := svc.FindWatchedTasks(ctx, event, "mfx-1")
		Expect(err).To(MatchError(ContainSubstring("listing watchers")))

		watchers.listErr = nil
		watchers.candidates = []model.EventWatcher{{ID: 1, TaskID: taskA, MatchQuery: map[string]string{"issue.number": "42"}}}
		tasks.listErr = errors.New("timeout")
		_, err = svc.FindWatchedTasks(ctx, event, "mfx-1")
		Expect(err).To(MatchError(ContainSubstring("loading watched tasks")))
	})
})
