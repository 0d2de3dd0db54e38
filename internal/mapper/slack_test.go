package mapper_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

func slackBody(eventID, eventType, channelType, text string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "event_callback",
		"team_id": "T1",
		"enterprise_id": "E1",
		"api_app_id": "A1",
		"event_id": %q,
		"event_time": 1700000000,
		"event": {
			"type": %q,
			"user": "U42",
			"text": %q,
			"ts": "1700000000.000100",
			"event_ts": "1700000000.000100",
			"thread_ts": "1699999999.000001",
			"channel": "C9",
			"channel_type": %q
		},
		"authorizations": [
			{"user_id": "UHUMAN", "team_id": "T1", "is_bot": false},
			{"user_id": "UBOT", "team_id": "T1", "is_bot": true}
		]
	}`, eventID, eventType, text, channelType))
}

var _ = Describe("SlackNormalizer", func() {
	var (
		n   *mapper.SlackNormalizer
		cfg domain.ConnectorConfig
	)

	BeforeEach(func() {
		n = mapper.NewSlackNormalizer()
		cfg = domain.ConnectorConfig{AppName: "relay", AppMentionID: "UALT"}
	})

	It("normalizes a channel message", func() {
		ev, err := n.Normalize("", slackBody("Ev1", "message", "channel", "<@UBOT> deploy the thing"), cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(ev.EventID).To(Equal("slack-Ev1"))
		Expect(ev.BaseType).To(Equal(domain.BaseTypeMessage))
		Expect(ev.EventType).To(Equal("message.channels"))
		Expect(ev.Provider).To(Equal(domain.ProviderSlack))
		Expect(ev.Timestamp).To(BeNumerically("~", 1700000000.0001, 0.001))
		Expect(ev.Bot).To(Equal(domain.Bot{ID: "UBOT", AppID: "A1", IsBotMentioned: true, BotName: "relay"}))
		Expect(ev.ProviderInfo.Team.ID).To(Equal("T1"))
		Expect(ev.ProviderInfo.Org.ID).To(Equal("E1"))
		Expect(ev.Sender.ID).To(Equal("U42"))
		Expect(ev.Channel).To(Equal(domain.Channel{ID: "C9", Type: domain.ChannelPublicChannel}))
		Expect(ev.Event.ParentTS).To(Equal("1699999999.000001"))
		Expect(ev.CleanText).To(Equal("@relay deploy the thing"))
		Expect(ev.Text).To(Equal("<@UBOT> deploy the thing"))
	})

	DescribeTable("derives the channel type from the message subtype",
		func(channelType, wantEvent string, want domain.ChannelType) {
			ev, err := n.Normalize("", slackBody("Ev1", "message", channelType, "hi"), cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(ev.EventType).To(Equal(wantEvent))
			Expect(ev.Channel.Type).To(Equal(want))
		},
		Entry("im", "im", "message.im", domain.ChannelUserToUser),
		Entry("app home", "app_home", "message.app_home", domain.ChannelDirectMessage),
		Entry("public", "channel", "message.channels", domain.ChannelPublicChannel),
		Entry("private", "group", "message.groups", domain.ChannelPrivateChannel),
		Entry("multi-party im", "mpim", "message.mpim", domain.ChannelPrivateChannel),
		Entry("unknown falls back to direct message", "", "message", domain.ChannelDirectMessage),
	)

	It("treats the configured mention id as a mention", func() {
		ev, err := n.Normalize("", slackBody("Ev1", "app_mention", "channel", "hey <@UALT> look"), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Bot.IsBotMentioned).To(BeTrue())
		Expect(ev.CleanText).To(Equal("hey @relay look"))
	})

	It("is not mentioned when neither identity appears", func() {
		ev, err := n.Normalize("", slackBody("Ev1", "message", "im", "just chatting"), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Bot.IsBotMentioned).To(BeFalse())
	})

	It("maps app_home_opened to the opened base type", func() {
		ev, err := n.Normalize("", slackBody("Ev1", "app_home_opened", "", ""), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.BaseType).To(Equal(domain.BaseTypeOpened))
	})

	It("rejects non-callback envelopes as untracked", func() {
		_, err := n.Normalize("", []byte(`{"type":"url_verification","challenge":"c"}`), cfg)
		Expect(err).To(MatchError(mapper.ErrUntrackedEvent))
	})

	It("rejects untracked event types", func() {
		_, err := n.Normalize("", slackBody("Ev1", "reaction_added", "", ""), cfg)
		Expect(err).To(MatchError(mapper.ErrUntrackedEvent))
	})

	It("produces distinct ids for distinct raw events", func() {
		a, err := n.Normalize("", slackBody("EvA", "message", "im", "x"), cfg)
		Expect(err).NotTo(HaveOccurred())
		b, err := n.Normalize("", slackBody("EvB", "message", "im", "x"), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(a.EventID).NotTo(Equal(b.EventID))
	})

	It("is deterministic", func() {
		raw := slackBody("Ev1", "message", "channel", "<@UBOT> hi")
		a, err := n.Normalize("", raw, cfg)
		Expect(err).NotTo(HaveOccurred())
		b, err := n.Normalize("", raw, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	It("fails on invalid JSON", func() {
		_, err := n.Normalize("", []byte("{"), cfg)
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(mapper.ErrUntrackedEvent))
	})
})
