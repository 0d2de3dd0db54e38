package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/webhook"
)

const whatsappBody = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "W1", "changes": [{"field": "messages", "value": {
		"metadata": {"phone_number_id": "PN1"},
		"contacts": [{"wa_id": "1555", "profile": {"name": "Ada"}}],
		"messages": [{"id": "wamid.1", "from": "1555", "timestamp": "1700000000", "type": "text", "text": {"body": "hello"}}]
	}}]}]
}`

const whatsappErrorBody = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "W1", "changes": [{"field": "messages", "value": {
		"metadata": {"phone_number_id": "PN1"},
		"errors": [{"code": 131051, "title": "Unsupported message type"}]
	}}]}]
}`

var _ = Describe("WhatsAppAdapter", func() {
	var (
		adapter *webhook.WhatsAppAdapter
		ctx     context.Context
		keys    []string
	)

	BeforeEach(func() {
		ctx = context.Background()
		keys = nil
		adapter = webhook.NewWhatsAppAdapter("app-secret", "verify-me", domain.ConnectorConfig{AppID: "APP"})
		record := func(_ context.Context, d webhook.Dispatch) error {
			keys = append(keys, d.Key)
			return nil
		}
		adapter.OnMessage(record)
		adapter.OnError(record)
	})

	post := func(body string) webhook.Request {
		h := http.Header{}
		h.Set("X-Hub-Signature-256", hubSignature("app-secret", body))
		return webhook.Request{Method: http.MethodPost, Headers: h, Body: []byte(body)}
	}

	Context("subscription handshake", func() {
		It("echoes the challenge for the right token", func() {
			q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"verify-me"}, "hub.challenge": {"1158201444"}}
			resp, err := adapter.Receive(ctx, webhook.Request{Method: http.MethodGet, Query: q})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(resp.Body)).To(Equal("1158201444"))
		})

		It("fails verification for a wrong token", func() {
			q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"nope"}, "hub.challenge": {"1"}}
			_, err := adapter.Receive(ctx, webhook.Request{Method: http.MethodGet, Query: q})
			Expect(err).To(MatchError(webhook.ErrVerification))
		})
	})

	It("rejects unsigned deliveries when an app secret is configured", func() {
		req := post(whatsappBody)
		req.Headers.Del("X-Hub-Signature-256")
		_, err := adapter.Receive(ctx, req)
		Expect(err).To(MatchError(webhook.ErrVerification))
		Expect(keys).To(BeEmpty())
	})

	It("rejects tampered deliveries", func() {
		req := post(whatsappBody)
		req.Body = []byte(whatsappErrorBody)
		_, err := adapter.Receive(ctx, req)
		Expect(err).To(MatchError(ContainSubstring("signature mismatch")))
		Expect(keys).To(BeEmpty())
	})

	Context("without an app secret", func() {
		BeforeEach(func() {
			adapter = webhook.NewWhatsAppAdapter("", "verify-me", domain.ConnectorConfig{})
			adapter.OnMessage(func(_ context.Context, d webhook.Dispatch) error {
				keys = append(keys, d.Key)
				return nil
			})
		})

		It("still answers the handshake", func() {
			q := url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {"verify-me"}, "hub.challenge": {"42"}}
			resp, err := adapter.Receive(ctx, webhook.Request{Method: http.MethodGet, Query: q})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(resp.Body)).To(Equal("42"))
		})

		It("rejects unsigned deliveries", func() {
			req := webhook.Request{Method: http.MethodPost, Headers: http.Header{}, Body: []byte(whatsappBody)}
			_, err := adapter.Receive(ctx, req)

			var verr *webhook.VerificationError
			Expect(errors.As(err, &verr)).To(BeTrue())
			Expect(verr.Reason).To(Equal("no app secret configured"))
			Expect(keys).To(BeEmpty())
		})
	})

	It("dispatches messages with the normalized event", func() {
		resp, err := adapter.Receive(ctx, post(whatsappBody))
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"message"}))
		Expect(resp.Event.EventID).To(Equal("whatsapp-wamid.1"))
	})

	It("dispatches platform errors and attaches no event", func() {
		resp, err := adapter.Receive(ctx, post(whatsappErrorBody))
		Expect(err).NotTo(HaveOccurred())
		Expect(keys).To(Equal([]string{"error"}))
		Expect(resp.Event).To(BeNil())
	})
})
