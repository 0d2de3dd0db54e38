package cli

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/internal/queue"
	"basegraph.app/hookrelay/internal/store"
)

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event-log-id>...",
		Short: "Re-enqueue stored events for orchestration",
		Long: `Put stored event logs back on the orchestration stream. The worker
rebuilds each envelope from the log row. Events already classified are
skipped by the orchestrator; failed and unclassified ones are processed again.

Examples:
  hookctl replay 1790342298452791296
  hookctl replay 1790342298452791296 1790342301057454080`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				n, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid event log id %q", arg)
				}
				ids = append(ids, n)
			}

			ctx := cmd.Context()
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			database, err := openDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			redisClient, err := openRedis(ctx, cfg)
			if err != nil {
				return err
			}
			producer := queue.NewRedisProducer(redisClient, cfg.Pipeline.RedisStream, slog.Default())
			defer producer.Close()

			eventLogs := store.NewStores(database.Conn()).EventLogs()
			for _, logID := range ids {
				eventLog, err := eventLogs.GetByID(ctx, logID)
				if err != nil {
					return fmt.Errorf("event log %d: %w", logID, err)
				}
				if err := producer.Enqueue(ctx, queue.EventMessage{
					TaskType:   queue.TaskTypeEventReplay,
					EventLogID: &eventLog.ID,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "replayed %d (%s %s, status %s)\n",
					eventLog.ID, eventLog.ProviderName, eventLog.ProviderEventID, eventLog.Status)
			}
			return nil
		},
	}
}
