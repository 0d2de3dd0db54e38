package queue

type TaskType string

const (
	// TaskTypeWebhookEnvelope carries a full envelope from the ingest server.
	TaskTypeWebhookEnvelope TaskType = "webhook_envelope"
	// TaskTypeEventReplay carries only an event log id; the worker rebuilds
	// the envelope from the stored event.
	TaskTypeEventReplay TaskType = "event_replay"
)

const (
	fieldTaskType   = "task_type"
	fieldEnvelope   = "envelope"
	fieldEventLogID = "event_log_id"
	fieldEventID    = "event_id"
	fieldProvider   = "provider"
	fieldDedupeKey  = "dedupe_key"
	fieldTraceID    = "trace_id"
	fieldAttempt    = "attempt"
)
