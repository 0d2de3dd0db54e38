package mapper

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("mention rewriting", func() {
	DescribeTable("replaceHandle is idempotent",
		func(text, handle, appName, want string) {
			once := replaceHandle(text, handle, appName)
			Expect(once).To(Equal(want))
			Expect(replaceHandle(once, handle, appName)).To(Equal(once))
		},
		Entry("plain rewrite", "@microfox-ai fix it", "microfox-ai", "relay", "@relay fix it"),
		Entry("app name extends handle", "@microfox-ai fix it", "microfox-ai", "microfox-ai-bot", "@microfox-ai-bot fix it"),
		Entry("end of text", "ping @microfox-ai", "microfox-ai", "relay", "ping @relay"),
		Entry("punctuation", "@microfox-ai, hi", "microfox-ai", "relay", "@relay, hi"),
		Entry("no handle", "nothing", "microfox-ai", "relay", "nothing"),
	)

	It("replaceSlackMentions is idempotent", func() {
		once := replaceSlackMentions("<@U1> and <@U2> hi", "relay", "U1", "U2")
		Expect(once).To(Equal("@relay and @relay hi"))
		Expect(replaceSlackMentions(once, "relay", "U1", "U2")).To(Equal(once))
	})

	It("leaves text unchanged without an app name", func() {
		Expect(replaceSlackMentions("<@U1> hi", "", "U1")).To(Equal("<@U1> hi"))
	})
})

var _ = Describe("StripLeadingMention", func() {
	It("removes one leading token", func() {
		Expect(StripLeadingMention("@relay @other do it")).To(Equal("@other do it"))
	})

	It("is a no-op without a leading mention", func() {
		Expect(StripLeadingMention("do it @relay")).To(Equal("do it @relay"))
	})
})

var _ = Describe("ExtractMentions", func() {
	It("returns distinct handles in order", func() {
		Expect(ExtractMentions("@a then @b. and @a again")).To(Equal([]string{"a", "b"}))
	})
})
