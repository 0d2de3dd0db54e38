package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/service"
	"basegraph.app/hookrelay/internal/webhook"
)

// MaxWebhookBody caps how much of a request body is read.
const MaxWebhookBody = 1 << 20

// Receiver is the part of webhook.Registry the handler needs.
type Receiver interface {
	Receive(ctx context.Context, name string, req webhook.Request) (*webhook.Response, error)
}

type WebhookHandler struct {
	registry    Receiver
	ingest      service.EventIngestService
	traceHeader string
}

func NewWebhookHandler(registry Receiver, ingest service.EventIngestService, traceHeader string) *WebhookHandler {
	return &WebhookHandler{
		registry:    registry,
		ingest:      ingest,
		traceHeader: traceHeader,
	}
}

func (h *WebhookHandler) Receive(c *gin.Context) {
	name := c.Param("provider")
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Provider:  logger.Ptr(name),
		Component: "hookrelay.http.webhook",
	})

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.observe(name, "too_large")
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		h.observe(name, "error")
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	resp, err := h.registry.Receive(ctx, name, webhook.Request{
		Method:  c.Request.Method,
		Headers: c.Request.Header,
		Body:    body,
		Query:   c.Request.URL.Query(),
	})
	if err != nil {
		var verr *webhook.VerificationError
		switch {
		case errors.As(err, &verr):
			slog.WarnContext(ctx, "webhook verification failed", "reason", verr.Reason)
			h.observe(name, "rejected")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "verification failed"})
		case errors.Is(err, webhook.ErrWebhookNotRegistered):
			h.observe(name, "unknown")
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown webhook"})
		default:
			slog.ErrorContext(ctx, "webhook handling failed", "error", err)
			h.observe(name, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to handle webhook"})
		}
		return
	}

	outcome := "ignored"
	if resp.Event != nil && resp.Event.IsTrackableMessage() {
		ctx = logger.WithLogFields(ctx, logger.LogFields{EventID: logger.Ptr(resp.Event.EventID)})

		params := service.EventIngestParams{Event: resp.Event}
		if traceID := h.traceID(c); traceID != "" {
			params.TraceID = &traceID
		}

		result, err := h.ingest.Ingest(ctx, params)
		if err != nil {
			// A 5xx makes the provider redeliver; the dedupe key was released.
			slog.ErrorContext(ctx, "failed to ingest event", "error", err)
			h.observe(name, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to ingest event"})
			return
		}
		switch {
		case result.Enqueued:
			outcome = "enqueued"
		case result.Duplicated:
			outcome = "duplicate"
		case result.Dropped:
			outcome = "dropped"
		}
	}
	h.observe(name, outcome)

	contentType := "text/plain; charset=utf-8"
	if isJSONDocument(resp.Body) {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}

func (h *WebhookHandler) traceID(c *gin.Context) string {
	if h.traceHeader != "" {
		if id := c.GetHeader(h.traceHeader); id != "" {
			return id
		}
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// observe keeps the provider label bounded to known providers.
func (h *WebhookHandler) observe(name, outcome string) {
	label := "other"
	if p, err := domain.ParseProvider(name); err == nil {
		label = string(p)
	}
	metrics.WebhooksReceived.WithLabelValues(label, outcome).Inc()
}

// isJSONDocument is false for bare scalars like the WhatsApp challenge echo.
func isJSONDocument(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return false
	}
	return json.Valid(trimmed)
}
