package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/model"
)

const watcherColumns = `id, task_id, microfox_id, provider_name, event_type, match_query,
	COALESCE(condition, ''), team_id, organization_id, expires_at, created_at`

type watcherStore struct {
	q db.DBTX
}

func newWatcherStore(q db.DBTX) WatcherStore {
	return &watcherStore{q: q}
}

func (s *watcherStore) Create(ctx context.Context, in CreateEventWatcherInput) (*model.EventWatcher, error) {
	query := in.MatchQuery
	if query == nil {
		query = map[string]string{}
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding match query: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO event_watchers (id, task_id, microfox_id, provider_name, event_type, match_query,
			condition, team_id, organization_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)
		RETURNING `+watcherColumns,
		id.New(), in.TaskID, in.MicrofoxID, in.ProviderName, in.EventType, queryJSON,
		in.Condition, in.TeamID, in.OrganizationID, in.ExpiresAt,
	)
	w, err := scanWatcher(row)
	if err != nil {
		return nil, fmt.Errorf("creating event watcher: %w", err)
	}
	return w, nil
}

func (s *watcherStore) ListCandidates(ctx context.Context, microfoxID, provider, eventType string) ([]model.EventWatcher, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+watcherColumns+` FROM event_watchers
		WHERE microfox_id = $1
		  AND provider_name = $2
		  AND (event_type = $3 OR event_type = '*')
		  AND (expires_at IS NULL OR expires_at > now())
		ORDER BY created_at DESC`,
		microfoxID, provider, eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var watchers []model.EventWatcher
	for rows.Next() {
		w, err := scanWatcher(rows)
		if err != nil {
			return nil, err
		}
		watchers = append(watchers, *w)
	}
	return watchers, rows.Err()
}

func scanWatcher(row pgx.Row) (*model.EventWatcher, error) {
	var (
		w         model.EventWatcher
		queryJSON []byte
	)
	err := row.Scan(
		&w.ID,
		&w.TaskID,
		&w.MicrofoxID,
		&w.ProviderName,
		&w.EventType,
		&queryJSON,
		&w.Condition,
		&w.TeamID,
		&w.OrganizationID,
		&w.ExpiresAt,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(queryJSON) > 0 {
		if err := json.Unmarshal(queryJSON, &w.MatchQuery); err != nil {
			return nil, fmt.Errorf("decoding match query for watcher %d: %w", w.ID, err)
		}
	}
	return &w, nil
}
