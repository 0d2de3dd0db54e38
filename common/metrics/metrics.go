package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_webhooks_received_total",
		Help: "Webhook requests received, labelled by adapter name and outcome.",
	}, []string{"provider", "outcome"})

	EventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_events_enqueued_total",
		Help: "Normalized events placed on the orchestration stream.",
	}, []string{"provider"})

	EventsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_events_deduplicated_total",
		Help: "Redelivered events skipped by the ingest dedupe window.",
	}, []string{"provider"})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_classifications_total",
		Help: "Orchestration branch outcomes, labelled by decision.",
	}, []string{"decision"})

	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_tasks_created_total",
		Help: "Tasks created by the orchestrator, labelled by provider.",
	}, []string{"provider"})

	EnvelopesReclaimed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hookrelay_envelopes_reclaimed_total",
		Help: "Stale stream envelopes taken over by the reclaimer, labelled by how they were settled.",
	}, []string{"outcome"})

	BranchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hookrelay_branch_duration_ms",
		Help:    "Per-connection orchestration branch latency in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
