package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"basegraph.app/hookrelay/internal/domain"
	"basegraph.app/hookrelay/internal/store"
)

func newConnectCmd() *cobra.Command {
	var (
		microfoxID  string
		provider    string
		botID       string
		teamID      string
		reactAccess bool
		configJSON  string
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Install a bot connection so its events are orchestrated",
		Long: `Create or update the connection between a microfox bot and a
provider bot identity. Events whose bot and team match are fanned out to it.

Examples:
  hookctl connect --microfox-id mfx-ops --provider slack --bot-id U07BOT --team-id T024BE7LD
  hookctl connect --microfox-id mfx-ops --provider github --bot-id 48213 --react`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParseProvider(provider)
			if err != nil {
				return err
			}
			if configJSON != "" && !json.Valid([]byte(configJSON)) {
				return fmt.Errorf("--config is not valid JSON")
			}
			conn := domain.Connection{
				MicrofoxBotID: microfoxID,
				Provider:      p,
				BotID:         botID,
				TeamID:        teamID,
				ReactAccess:   reactAccess,
			}
			if configJSON != "" {
				conn.Config = json.RawMessage(configJSON)
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

			if err := store.NewStores(database.Conn()).Connections().Upsert(ctx, conn); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), conn)
		},
	}

	cmd.Flags().StringVar(&microfoxID, "microfox-id", "", "Microfox bot id")
	cmd.Flags().StringVar(&provider, "provider", "", "Provider (slack, github, whatsapp, gitlab)")
	cmd.Flags().StringVar(&botID, "bot-id", "", "Provider bot id (Slack bot user, GitHub installation, GitLab project)")
	cmd.Flags().StringVar(&teamID, "team-id", "", "Provider team; empty matches every team")
	cmd.Flags().BoolVar(&reactAccess, "react", false, "Allow the bot to react to messages")
	cmd.Flags().StringVar(&configJSON, "config", "", "Connection config as JSON")
	for _, name := range []string{"microfox-id", "provider", "bot-id"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
