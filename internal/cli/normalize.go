package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/mapper"
	"basegraph.app/hookrelay/internal/webhook"
)

func newNormalizeCmd() *cobra.Command {
	var (
		provider  string
		eventType string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a raw provider payload into a canonical event",
		Long: `Normalize a raw webhook body without verifying it and print the
canonical event as JSON. Bot identity comes from the connectors config.

Examples:
  hookctl normalize --provider slack --file event.json
  hookctl normalize --provider github --event-type issues.opened --file issue.json
  cat note.json | hookctl normalize --provider gitlab --event-type "Note Hook"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(provider)
			if err != nil {
				return err
			}

			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			event, err := mapper.DefaultRegistry().Normalize(p, eventType, raw, webhook.ConnectorFor(cfg.Connectors, p))
			if errors.Is(err, mapper.ErrUntrackedEvent) {
				fmt.Fprintln(cmd.ErrOrStderr(), "event is not tracked:", err)
				return nil
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), event)
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Provider (slack, github, whatsapp, gitlab)")
	cmd.Flags().StringVarP(&eventType, "event-type", "e", "", "Provider event type when it is not in the body")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Payload file, - for stdin")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "" || file == "-" {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	return raw, nil
}
