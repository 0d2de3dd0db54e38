package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/common/llm"
	"basegraph.app/hookrelay/internal/brain"
	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
)

func newClassifyCmd() *cobra.Command {
	var (
		details  bool
		provider string
	)

	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Run the pre-classifier on a message",
		Long: `Run the pre-classifier (and optionally the task detail generator)
against a message, without touching the database.

Examples:
  hookctl classify "@microfox remind me to file the Q4 report on Friday"
  hookctl classify --details "can you review PR 42 when CI passes"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := mapper.StripLeadingMention(strings.Join(args, " "))
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("nothing to classify")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			client, err := llm.New(llm.Config{
				Provider:  cfg.ClassifierLLM.Provider,
				APIKey:    cfg.ClassifierLLM.APIKey,
				BaseURL:   cfg.ClassifierLLM.BaseURL,
				Model:     cfg.ClassifierLLM.Model,
				MaxTokens: cfg.ClassifierLLM.MaxTokens,
			})
			if err != nil {
				return fmt.Errorf("creating llm client: %w", err)
			}

			result, err := brain.NewPreClassifier(client, nil).Classify(cmd.Context(), text)
			if err != nil {
				return err
			}
			if !details || result.Decision != brain.DecisionNewTask {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			p, err := domain.ParseProvider(provider)
			if err != nil {
				return err
			}
			taskDetails, err := brain.NewTaskDetailGenerator(client, nil).Generate(cmd.Context(), brain.TaskDetailInput{
				CleanText: text,
				Provider:  p,
				Now:       time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				Classification *brain.PreClassification `json:"classification"`
				Details        *brain.TaskDetails       `json:"details"`
			}{result, taskDetails})
		},
	}

	cmd.Flags().BoolVar(&details, "details", false, "Also generate task details for new_task decisions")
	cmd.Flags().StringVar(&provider, "provider", "slack", "Provider the message is attributed to")

	return cmd
}
