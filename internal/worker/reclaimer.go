package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/internal/queue"
)

type RedisReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
	// MaxDeliveries dead-letters an envelope once Redis has handed it out
	// this many times without an ack.
	MaxDeliveries int64
}

// RedisReclaimer takes over envelopes left pending by a worker that died
// between XREADGROUP and XACK, and settles them through the same path as
// freshly read messages.
type RedisReclaimer struct {
	client    StreamClaimer
	cfg       RedisReclaimerConfig
	consumer  Consumer
	processor queue.MessageProcessor

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewRedisReclaimer creates a RedisReclaimer. processor must settle the
// message (ack, requeue or DLQ), as Worker.HandleMessage does.
func NewRedisReclaimer(client StreamClaimer, cfg RedisReclaimerConfig, consumer Consumer, processor queue.MessageProcessor) *RedisReclaimer {
	return &RedisReclaimer{
		client:    client,
		cfg:       cfg,
		consumer:  consumer,
		processor: processor,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run reclaims on every interval tick until Stop is called or ctx ends.
func (r *RedisReclaimer) Run(ctx context.Context) {
	defer close(r.stoppedCh)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "hookrelay.worker.reclaimer"})

	slog.InfoContext(ctx, "reclaimer started",
		"stream", r.cfg.Stream,
		"group", r.cfg.Group,
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if _, err := r.ReclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle failed", "error", err)
			}
		}
	}
}

func (r *RedisReclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce claims one batch of stale envelopes and settles each of them.
// It returns how many envelopes this consumer claimed.
func (r *RedisReclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.cfg.Stream,
		Group:  r.cfg.Group,
		Idle:   r.cfg.MinIdle,
		Start:  "-",
		End:    "+",
		Count:  r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}

	// MinIdle is re-checked by XCLAIM, so envelopes another reclaimer took
	// in the meantime are left out of the result.
	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xclaim: %w", err)
	}

	slog.InfoContext(ctx, "claimed stale envelopes", "pending", len(pending), "claimed", len(claimed))
	for _, raw := range claimed {
		r.settle(ctx, raw, deliveries[raw.ID])
	}
	return len(claimed), nil
}

func (r *RedisReclaimer) settle(ctx context.Context, raw redis.XMessage, deliveries int64) {
	msg, err := queue.ParseMessage(raw)
	if err != nil {
		ctx = logger.WithLogFields(ctx, logger.LogFields{MessageID: logger.Ptr(raw.ID)})
		slog.ErrorContext(ctx, "dropping unparseable reclaimed envelope", "error", err)
		if err := r.consumer.Ack(ctx, queue.Message{ID: raw.ID, Raw: raw}); err != nil {
			slog.ErrorContext(ctx, "failed to ack unparseable envelope", "error", err)
		}
		metrics.EnvelopesReclaimed.WithLabelValues("unparseable").Inc()
		return
	}

	ctx = messageContext(ctx, msg)
	slog.InfoContext(ctx, "reclaiming stale envelope",
		"deliveries", deliveries,
		"attempt", msg.Attempt,
		"trace_id", msg.TraceID)

	if r.cfg.MaxDeliveries > 0 && deliveries >= r.cfg.MaxDeliveries {
		reason := fmt.Sprintf("stalled after %d deliveries", deliveries)
		if err := r.consumer.SendDLQ(ctx, msg, reason); err != nil {
			slog.ErrorContext(ctx, "failed to dead-letter stalled envelope", "error", err)
			metrics.EnvelopesReclaimed.WithLabelValues("failed").Inc()
			return
		}
		slog.ErrorContext(ctx, "stalled envelope dead-lettered", "deliveries", deliveries)
		metrics.EnvelopesReclaimed.WithLabelValues("dead_lettered").Inc()
		return
	}

	start := time.Now()
	if err := r.processor(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "reclaimed envelope not settled", "error", err)
		metrics.EnvelopesReclaimed.WithLabelValues("failed").Inc()
		return
	}
	slog.InfoContext(ctx, "reclaimed envelope settled", "duration_ms", time.Since(start).Milliseconds())
	metrics.EnvelopesReclaimed.WithLabelValues("settled").Inc()
}
