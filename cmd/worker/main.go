package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/common/llm"
	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/common/metrics"
	"basegraph.app/hookrelay/common/otel"
	"basegraph.app/hookrelay/core/config"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/brain"
	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/service"
	"basegraph.app/hookrelay/internal/store"
	"basegraph.app/hookrelay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg, config.ServiceTypeWorker)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "hookrelay worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	classifierLLM, err := llm.New(llmConfig(cfg.ClassifierLLM))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create classifier llm client", "error", err)
		os.Exit(1)
	}
	detailLLM, err := llm.New(llmConfig(cfg.DetailLLM))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create detail llm client", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(database.Conn())
	services := service.NewServices(stores, nil, nil, slog.Default())

	orchestrator := brain.NewTaskOrchestrator(
		brain.OrchestratorConfig{AITimeout: cfg.Orchestrator.AITimeout},
		brain.NewPreClassifier(classifierLLM, stores.LLMEvals()),
		brain.NewTaskDetailGenerator(detailLLM, stores.LLMEvals()),
		services.Watchers(),
		stores.EventLogs(),
		stores.Tasks(),
		brain.NewTxRunner(database),
	)

	w := worker.New(consumer, worker.NewProcessor(orchestrator, stores.EventLogs()), worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:        cfg.Pipeline.RedisStream,
		Group:         cfg.Pipeline.RedisGroup,
		Consumer:      cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:       5 * time.Minute,
		Interval:      1 * time.Minute,
		BatchSize:     10,
		MaxDeliveries: int64(cfg.Pipeline.MaxAttempts) + 2,
	}, consumer, w.HandleMessage)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "metrics server error", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running", "metrics_port", cfg.MetricsPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be processing)
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "metrics server shutdown error", "error", err)
	}
	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func llmConfig(c config.LLMConfig) llm.Config {
	return llm.Config{
		Provider:  c.Provider,
		APIKey:    c.APIKey,
		BaseURL:   c.BaseURL,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
	}
}

const banner = `
hookrelay :: worker
`
