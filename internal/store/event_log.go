package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/model"
)

const eventLogColumns = `id, microfox_ids, provider_name, provider_event_id, event_type,
	status, content, metadata, classification_notes, created_at, updated_at`

type eventLogStore struct {
	q db.DBTX
}

func newEventLogStore(q db.DBTX) EventLogStore {
	return &eventLogStore{q: q}
}

func (s *eventLogStore) LogEvent(ctx context.Context, in LogEventInput) (*model.EventLog, bool, error) {
	newID := id.New()
	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	microfoxIDs := in.MicrofoxIDs
	if microfoxIDs == nil {
		microfoxIDs = []string{}
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	row := s.q.QueryRow(ctx, `
		INSERT INTO event_logs (id, microfox_ids, provider_name, provider_event_id, event_type, content, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_name, provider_event_id)
		DO UPDATE SET updated_at = event_logs.updated_at
		RETURNING `+eventLogColumns,
		newID, microfoxIDs, in.ProviderName, in.ProviderEventID, in.EventType, []byte(in.Content), []byte(metadata),
	)
	log, err := scanEventLog(row)
	if err != nil {
		return nil, false, fmt.Errorf("logging event %s/%s: %w", in.ProviderName, in.ProviderEventID, err)
	}
	return log, log.ID == newID, nil
}

func (s *eventLogStore) GetByID(ctx context.Context, id int64) (*model.EventLog, error) {
	row := s.q.QueryRow(ctx, `SELECT `+eventLogColumns+` FROM event_logs WHERE id = $1`, id)
	log, err := scanEventLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return log, nil
}

func (s *eventLogStore) MarkClassified(ctx context.Context, id int64, status model.EventLogStatus, notes string) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE event_logs
		SET status = $2, classification_notes = NULLIF($3, ''), updated_at = now()
		WHERE id = $1`,
		id, string(status), notes,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEventLog(row pgx.Row) (*model.EventLog, error) {
	var (
		log      model.EventLog
		status   string
		content  []byte
		metadata []byte
	)
	err := row.Scan(
		&log.ID,
		&log.MicrofoxIDs,
		&log.ProviderName,
		&log.ProviderEventID,
		&log.EventType,
		&status,
		&content,
		&metadata,
		&log.ClassificationNotes,
		&log.CreatedAt,
		&log.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	log.Status = model.EventLogStatus(status)
	log.Content = content
	log.Metadata = metadata
	return &log, nil
}
