package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/model"
	"basegraph.app/hookrelay/internal/store"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and update orchestrated tasks",
	}
	cmd.AddCommand(newTasksListCmd(), newTasksGetCmd(), newTasksSetStateCmd())
	return cmd
}

func newTasksListCmd() *cobra.Command {
	var (
		microfoxID string
		provider   string
		limit      int32
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent tasks for a bot",
		Long: `List the most recent tasks created for a microfox bot from one provider.

Examples:
  hookctl tasks list --microfox-id mfx-ops --provider slack
  hookctl tasks list --microfox-id mfx-ops --provider github --limit 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(provider)
			if err != nil {
				return err
			}
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
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

			tasks, err := store.NewStores(database.Conn()).Tasks().ListRecent(ctx, microfoxID, string(p), limit)
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []model.Task{}
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		},
	}

	cmd.Flags().StringVar(&microfoxID, "microfox-id", "", "Microfox bot id")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider (slack, github, whatsapp, gitlab)")
	cmd.Flags().Int32Var(&limit, "limit", 20, "Maximum number of tasks")
	_ = cmd.MarkFlagRequired("microfox-id")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func newTasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Print one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
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

			task, err := store.NewStores(database.Conn()).Tasks().GetByID(ctx, taskID)
			if err != nil {
				return fmt.Errorf("task %s: %w", taskID, err)
			}
			return writeJSON(cmd.OutOrStdout(), task)
		},
	}
}

func newTasksSetStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <task-id> <state>",
		Short: "Move a task to a new state",
		Long: `Move a task to a new state, e.g. when the agent that owns it
reports back out of band.

Examples:
  hookctl tasks set-state 0190f5d2-8c1e-7b5a-9c43-2f9e1d0a7b11 completed
  hookctl tasks set-state 0190f5d2-8c1e-7b5a-9c43-2f9e1d0a7b11 canceled`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			state := model.TaskState(args[1])
			if !state.Valid() {
				return fmt.Errorf("unknown task state %q", args[1])
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

			if err := store.NewStores(database.Conn()).Tasks().UpdateState(ctx, taskID, state); err != nil {
				return fmt.Errorf("task %s: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %s is %s\n", taskID, state)
			return nil
		},
	}
}
