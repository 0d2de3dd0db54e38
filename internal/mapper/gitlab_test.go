package mapper_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

const gitlabIssueOpen = `{
	"object_kind": "issue",
	"user": {"id": 3, "username": "root", "avatar_url": "https://gitlab.example/a.png"},
	"project": {"id": 15, "namespace": "acme", "path_with_namespace": "acme/app"},
	"object_attributes": {
		"id": 301,
		"iid": 23,
		"title": "Login broken",
		"description": "@relay-bot can you triage",
		"action": "open",
		"created_at": "2013-12-03 17:15:43 UTC"
	}
}`

const gitlabNoteOnMR = `{
	"object_kind": "note",
	"user": {"id": 3, "username": "root"},
	"project_id": 15,
	"project": {"id": 15, "namespace": "acme"},
	"object_attributes": {
		"id": 1244,
		"note": "looks fine",
		"noteable_type": "MergeRequest",
		"created_at": "2015-05-17T18:21:36Z"
	},
	"merge_request": {"id": 7, "iid": 1}
}`

var _ = Describe("GitLabNormalizer", func() {
	var (
		n   *mapper.GitLabNormalizer
		cfg domain.ConnectorConfig
	)

	BeforeEach(func() {
		n = mapper.NewGitLabNormalizer()
		cfg = domain.ConnectorConfig{AppName: "relay", BotName: "relay-bot", AppID: "gl-app"}
	})

	It("normalizes an opened issue", func() {
		ev, err := n.Normalize("Issue Hook", []byte(gitlabIssueOpen), cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(ev.EventID).To(Equal("gitlab-issue-301"))
		Expect(ev.EventType).To(Equal("issues.opened"))
		Expect(ev.BaseType).To(Equal(domain.BaseTypeOpened))
		Expect(ev.Channel).To(Equal(domain.Channel{ID: "23", Type: domain.ChannelIssue}))
		Expect(ev.Timestamp).To(Equal(1386090943.0))
		Expect(ev.Bot.IsBotMentioned).To(BeTrue())
		Expect(ev.Bot.ID).To(Equal("15"))
		Expect(ev.Bot.AppID).To(Equal("gl-app"))
		Expect(ev.CleanText).To(Equal("@relay can you triage"))
		Expect(ev.ProviderInfo.Org.ID).To(Equal("acme"))
		Expect(ev.Sender.Name).To(Equal("root"))
	})

	It("normalizes a note on a merge request", func() {
		ev, err := n.Normalize("Note Hook", []byte(gitlabNoteOnMR), cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(ev.EventID).To(Equal("gitlab-note-1244"))
		Expect(ev.EventType).To(Equal("note.created"))
		Expect(ev.BaseType).To(Equal(domain.BaseTypeMessage))
		Expect(ev.Channel).To(Equal(domain.Channel{ID: "1", Type: domain.ChannelMergeRequest}))
		Expect(ev.Event.ParentTS).To(Equal("7"))
		Expect(ev.Bot.IsBotMentioned).To(BeFalse())
		Expect(ev.Bot.ID).To(Equal("15"))
		Expect(ev.Sender.ID).To(Equal("3"))
	})

	It("normalizes a note on an issue", func() {
		raw := `{
			"object_kind": "note",
			"user": {"id": 4, "username": "ada"},
			"project_id": 15,
			"project": {"namespace": "acme"},
			"object_attributes": {"id": 1300, "note": "@relay-bot please look", "noteable_type": "Issue", "created_at": "2015-05-17T18:21:36Z"},
			"issue": {"id": 301, "iid": 23}
		}`
		ev, err := n.Normalize("Note Hook", []byte(raw), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Channel).To(Equal(domain.Channel{ID: "23", Type: domain.ChannelIssue}))
		Expect(ev.Event.ParentTS).To(Equal("301"))
		Expect(ev.Sender.Name).To(Equal("ada"))
		Expect(ev.Bot.IsBotMentioned).To(BeTrue())
	})

	It("keeps an empty issue description empty", func() {
		raw := `{"object_kind":"issue","project":{"id":15},"object_attributes":{"id":9,"iid":2,"title":"Only a title","action":"open"}}`
		ev, err := n.Normalize("Issue Hook", []byte(raw), cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Text).To(BeEmpty())
	})

	It("fails on malformed JSON", func() {
		_, err := n.Normalize("Note Hook", []byte(`{"object_kind":`), cfg)
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(mapper.ErrUntrackedEvent))
	})

	DescribeTable("drops untracked events",
		func(eventType, raw string) {
			_, err := n.Normalize(eventType, []byte(raw), cfg)
			Expect(err).To(MatchError(mapper.ErrUntrackedEvent))
		},
		Entry("closed issue", "Issue Hook", `{"object_attributes":{"id":1,"action":"close"}}`),
		Entry("snippet note", "Note Hook", `{"object_kind":"note","object_attributes":{"id":1,"noteable_type":"Snippet"}}`),
		Entry("note without object kind", "Note Hook", `{"object_attributes":{"id":1,"noteable_type":"Issue"}}`),
		Entry("pipeline", "Pipeline Hook", `{}`),
	)
})

var _ = Describe("Registry", func() {
	It("dispatches by provider", func() {
		ev, err := mapper.DefaultRegistry().Normalize(domain.ProviderGitHub, "issues.opened", []byte(githubIssueOpened), domain.ConnectorConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Provider).To(Equal(domain.ProviderGitHub))
	})

	It("fails for an unregistered provider", func() {
		r := mapper.NewRegistry(mapper.NewSlackNormalizer())
		_, err := r.Normalize(domain.ProviderGitLab, "Issue Hook", []byte(gitlabIssueOpen), domain.ConnectorConfig{})
		Expect(err).To(MatchError(ContainSubstring("no normalizer")))
	})
})
