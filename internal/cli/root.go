// Package cli implements hookctl, the operator CLI for hookrelay.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/common/logger"
	"basegraph.app/hookrelay/core/config"
	"basegraph.app/hookrelay/core/db"
)

var jsonIndent bool

// NewRootCmd builds the hookctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hookctl",
		Short:         "Operate the hookrelay webhook pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&jsonIndent, "pretty", true, "Indent JSON output")

	root.AddCommand(
		newNormalizeCmd(),
		newClassifyCmd(),
		newMigrateCmd(),
		newReplayCmd(),
		newConnectCmd(),
		newTasksCmd(),
	)
	return root
}

// Execute runs hookctl with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// loadConfig logs to the command's stderr so stdout carries only output.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return config.Config{}, err
	}
	logger.SetupWriter(cfg, cmd.ErrOrStderr())
	return cfg, nil
}

func openDB(ctx context.Context, cfg config.Config) (*db.DB, error) {
	// Keep CLI ids apart from the server (1) and worker (2).
	if err := id.Init(3); err != nil {
		return nil, fmt.Errorf("initializing id generator: %w", err)
	}
	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "database connected")
	return database, nil
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func writeJSON(w io.Writer, v any) error {
	var (
		out []byte
		err error
	)
	if jsonIndent {
		out, err = json.MarshalIndent(v, "", "  ")
	} else {
		out, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
