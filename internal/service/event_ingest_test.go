package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/service"
)

func slackEvent() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		EventID:      "slack-Ev0PV52K21",
		BaseType:     domain.BaseTypeMessage,
		EventType:    "app_mention",
		Text:         "<@U0BOT> remind me to ship the release",
		CleanText:    "@microfox remind me to ship the release",
		Provider:     domain.ProviderSlack,
		Bot:          domain.Bot{ID: "U0BOT", AppID: "A0APP", IsBotMentioned: true},
		ProviderInfo: domain.ProviderInfo{Team: domain.Ref{ID: "T0TEAM"}},
		Sender:       domain.Sender{ID: "U0ALICE"},
		Channel:      domain.Channel{ID: "C0GENERAL", Type: domain.ChannelPublicChannel},
	}
}

var _ = Describe("EventIngestService", func() {
	var (
		ctx         context.Context
		connections *mockConnectionStore
		deduper     *mockDeduper
		producer    *mockProducer
		svc         service.EventIngestService
	)

	BeforeEach(func() {
		ctx = context.Background()
		connections = &mockConnectionStore{
			listFn: func(ctx context.Context, provider domain.Provider, botID, teamID string) ([]domain.Connection, error) {
				return []domain.Connection{
					{MicrofoxBotID: "mfx-a", Provider: provider, BotID: botID, TeamID: teamID},
					{MicrofoxBotID: "mfx-b", Provider: provider, BotID: botID, TeamID: teamID, ReactAccess: true},
				}, nil
			},
		}
		deduper = &mockDeduper{}
		producer = &mockProducer{}
		svc = service.NewEventIngestService(connections, deduper, producer, nil)
	})

	It("enqueues an envelope carrying every installed connection", func() {
		trace := "trace-123"
		result, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent(), TraceID: &trace})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Enqueued).To(BeTrue())
		Expect(result.DedupeKey).To(Equal("slack:slack-Ev0PV52K21"))

		Expect(connections.calls).To(ConsistOf(listByBotCall{provider: domain.ProviderSlack, botID: "U0BOT", teamID: "T0TEAM"}))

		Expect(producer.messages).To(HaveLen(1))
		msg := producer.messages[0]
		Expect(msg.TaskType).To(Equal(queue.TaskTypeWebhookEnvelope))
		Expect(msg.DedupeKey).To(Equal("slack:slack-Ev0PV52K21"))
		Expect(*msg.TraceID).To(Equal("trace-123"))
		Expect(msg.Envelope.MicrofoxConnections).To(HaveLen(2))
		Expect(msg.Envelope.Channel.ID).To(Equal("C0GENERAL"))
		Expect(*msg.Envelope.ReactAccess).To(BeTrue())
		Expect(msg.Envelope.IsTaskImportant).To(BeNil())
	})

	It("prefers an explicit bot identity over the event's", func() {
		important := true
		_, err := svc.Ingest(ctx, service.EventIngestParams{
			Event:           slackEvent(),
			BotID:           "U0OTHER",
			TeamID:          "T0OTHER",
			IsTaskImportant: &important,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(connections.calls[0].botID).To(Equal("U0OTHER"))
		Expect(connections.calls[0].teamID).To(Equal("T0OTHER"))
		Expect(*producer.messages[0].Envelope.IsTaskImportant).To(BeTrue())
	})

	It("drops events no bot is installed for", func() {
		connections.listFn = nil

		result, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Dropped).To(BeTrue())
		Expect(producer.messages).To(BeEmpty())
		Expect(deduper.seen).To(BeEmpty())
	})

	It("enqueues a redelivered event only once", func() {
		first, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).NotTo(HaveOccurred())
		second, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).NotTo(HaveOccurred())

		Expect(first.Enqueued).To(BeTrue())
		Expect(second.Enqueued).To(BeFalse())
		Expect(second.Duplicated).To(BeTrue())
		Expect(producer.messages).To(HaveLen(1))
	})

	It("releases the dedupe key when enqueueing fails so a retry gets through", func() {
		producer.enqueueFn = func(ctx context.Context, msg queue.EventMessage) error {
			return errors.New("redis unavailable")
		}

		_, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).To(MatchError(ContainSubstring("redis unavailable")))
		Expect(deduper.released).To(ConsistOf("slack:slack-Ev0PV52K21"))

		producer.enqueueFn = nil
		result, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Enqueued).To(BeTrue())
	})

	It("surfaces connection lookup failures", func() {
		connections.listFn = func(ctx context.Context, provider domain.Provider, botID, teamID string) ([]domain.Connection, error) {
			return nil, errors.New("db down")
		}

		_, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).To(MatchError(ContainSubstring("resolving connections")))
		Expect(producer.messages).To(BeEmpty())
	})

	It("surfaces dedupe store failures without enqueueing", func() {
		deduper.claimErr = errors.New("claim failed")

		_, err := svc.Ingest(ctx, service.EventIngestParams{Event: slackEvent()})
		Expect(err).To(MatchError(ContainSubstring("claim failed")))
		Expect(producer.messages).To(BeEmpty())
	})

	It("rejects events without an id", func() {
		_, err := svc.Ingest(ctx, service.EventIngestParams{Event: &domain.WebhookEvent{Provider: domain.ProviderSlack}})
		Expect(err).To(MatchError(service.ErrInvalidEvent))
		Expect(connections.calls).To(BeEmpty())
	})
})
