package store

import (
	"context"
	"fmt"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/domain"
)

type connectionStore struct {
	q db.DBTX
}

func newConnectionStore(q db.DBTX) ConnectionStore {
	return &connectionStore{q: q}
}

// ListByBot returns the connections installed for a provider bot. An empty
// teamID matches every team.
func (s *connectionStore) ListByBot(ctx context.Context, provider domain.Provider, botID, teamID string) ([]domain.Connection, error) {
	rows, err := s.q.Query(ctx, `
		SELECT microfox_bot_id, provider, bot_id, team_id, react_access, config
		FROM microfox_connections
		WHERE provider = $1 AND bot_id = $2 AND ($3 = '' OR team_id = '' OR team_id = $3)
		ORDER BY id`,
		string(provider), botID, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var conns []domain.Connection
	for rows.Next() {
		var (
			c        domain.Connection
			provider string
			config   []byte
		)
		if err := rows.Scan(&c.MicrofoxBotID, &provider, &c.BotID, &c.TeamID, &c.ReactAccess, &config); err != nil {
			return nil, err
		}
		c.Provider = domain.Provider(provider)
		c.Config = config
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (s *connectionStore) Upsert(ctx context.Context, conn domain.Connection) error {
	config := []byte(conn.Config)
	if len(config) == 0 {
		config = []byte("{}")
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO microfox_connections (id, microfox_bot_id, provider, bot_id, team_id, react_access, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (microfox_bot_id, provider, bot_id)
		DO UPDATE SET team_id = EXCLUDED.team_id, react_access = EXCLUDED.react_access, config = EXCLUDED.config`,
		id.New(), conn.MicrofoxBotID, string(conn.Provider), conn.BotID, conn.TeamID, conn.ReactAccess, config,
	)
	if err != nil {
		return fmt.Errorf("upserting connection %s: %w", conn.MicrofoxBotID, err)
	}
	return nil
}
