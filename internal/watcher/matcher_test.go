package watcher_test

import (
	"context"
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/watcher"
)

func issueComment() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		EventID:   "github-issue_comment-1001",
		BaseType:  domain.BaseTypeMessage,
		EventType: "issue_comment.created",
		Provider:  domain.ProviderGitHub,
		Text:      "any update?",
		Sender:    domain.Sender{ID: "9", Name: "octocat"},
		Channel:   domain.Channel{ID: "7", Type: domain.ChannelIssue},
		Bot:       domain.Bot{ID: "555", IsBotMentioned: true},
		OriginalPayload: json.RawMessage(`{
			"action": "created",
			"issue": {"number": 7, "node_id": "I_kw42", "labels": [{"name": "bug"}]},
			"repository": {"full_name": "acme/app"}
		}`),
	}
}

var _ = Describe("Matcher", func() {
	var (
		m   *watcher.Matcher
		ctx context.Context
	)

	BeforeEach(func() {
		m = watcher.NewMatcher()
		ctx = context.Background()
	})

	DescribeTable("match_query",
		func(query map[string]string, want bool) {
			w := model.EventWatcher{ID: 1, MatchQuery: query}
			Expect(m.Match(ctx, w, issueComment())).To(Equal(want))
		},
		Entry("jsonpath number compared as string", map[string]string{"$.issue.number": "7"}, true),
		Entry("dotted path is prefixed", map[string]string{"repository.full_name": "acme/app"}, true),
		Entry("all pairs must hold", map[string]string{"$.issue.number": "7", "$.action": "edited"}, false),
		Entry("array element", map[string]string{"$.issue.labels[0].name": "bug"}, true),
		Entry("missing path", map[string]string{"$.pull_request.number": "7"}, false),
		Entry("different value", map[string]string{"$.issue.node_id": "I_other"}, false),
	)

	DescribeTable("condition",
		func(condition string, want bool) {
			w := model.EventWatcher{ID: 2, Condition: condition}
			Expect(m.Match(ctx, w, issueComment())).To(Equal(want))
		},
		Entry("bracketed flattened key", "[channel.type] == 'issue' && [sender.id] == '9'", true),
		Entry("top-level key", "provider == 'github'", true),
		Entry("boolean field", "[bot.is_bot_mentioned] == true", true),
		Entry("false condition", "[channel.id] == '8'", false),
		Entry("unknown parameter", "[nope] == 'x'", false),
		Entry("syntax error", "((", false),
	)

	It("requires both the query and the condition", func() {
		w := model.EventWatcher{
			MatchQuery: map[string]string{"$.issue.number": "7"},
			Condition:  "[sender.id] == '10'",
		}
		Expect(m.Match(ctx, w, issueComment())).To(BeFalse())
	})

	It("never matches an empty watcher", func() {
		Expect(m.Match(ctx, model.EventWatcher{}, issueComment())).To(BeFalse())
	})

	It("does not match when the payload is missing", func() {
		ev := issueComment()
		ev.OriginalPayload = nil
		w := model.EventWatcher{MatchQuery: map[string]string{"$.issue.number": "7"}}
		Expect(m.Match(ctx, w, ev)).To(BeFalse())
	})

	Describe("Validate", func() {
		It("rejects an empty watcher", func() {
			Expect(m.Validate(nil, " ")).NotTo(Succeed())
		})

		It("rejects an invalid condition", func() {
			Expect(m.Validate(nil, "((")).NotTo(Succeed())
		})

		It("accepts a query alone", func() {
			Expect(m.Validate(map[string]string{"$.a": "b"}, "")).To(Succeed())
		})
	})
})

var _ = Describe("Flatten", func() {
	It("joins nested keys and expands arrays", func() {
		out := watcher.Flatten(map[string]any{
			"a": map[string]any{"b": 1.0},
			"l": []any{"x", map[string]any{"y": true}},
		})
		Expect(out).To(HaveKeyWithValue("a.b", 1.0))
		Expect(out).To(HaveKeyWithValue("l[0]", "x"))
		Expect(out).To(HaveKeyWithValue("l[1].y", true))
		Expect(out).To(HaveKey("l[]"))
		Expect(out).To(HaveKey("l"))
	})
})

var _ = Describe("EventParameters", func() {
	It("excludes the original payload", func() {
		params := watcher.EventParameters(issueComment())
		Expect(params).To(HaveKeyWithValue("event_id", "github-issue_comment-1001"))
		for key := range params {
			Expect(key).NotTo(HavePrefix("original_payload"))
		}
	})
})
