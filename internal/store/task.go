package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"basegraph.app/hookrelay/common/id"
	"basegraph.app/hookrelay/core/db"
	"basegraph.app/hookrelay/internal/model"
)

const taskColumns = `id, context_id, microfox_id, name, ai_description, task_type, state, priority,
	provider_name, triggering_event_id, authorized_users, input, output, metadata,
	scheduled_for, expires_at, created_at, updated_at`

type taskStore struct {
	q db.DBTX
}

func newTaskStore(q db.DBTX) TaskStore {
	return &taskStore{q: q}
}

func (s *taskStore) Create(ctx context.Context, in CreateTaskInput) (*model.Task, error) {
	taskID, err := id.NewTaskID()
	if err != nil {
		return nil, err
	}
	contextID := taskID
	if in.ContextID != nil {
		contextID = *in.ContextID
	}

	taskType := in.TaskType
	if taskType == "" {
		taskType = model.TaskTypeDefault
	}
	priority := in.Priority
	if priority == "" {
		priority = model.TaskPriorityMedium
	}
	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	authorized := in.AuthorizedUsers
	if authorized == nil {
		authorized = []string{}
	}
	var input []byte
	if len(in.Input) > 0 {
		input = in.Input
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO tasks (id, context_id, microfox_id, name, ai_description, task_type, state, priority,
			provider_name, triggering_event_id, authorized_users, input, metadata, scheduled_for, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (triggering_event_id, microfox_id) DO NOTHING
		RETURNING `+taskColumns,
		taskID, contextID, in.MicrofoxID, in.Name, in.AIDescription, string(taskType),
		string(model.TaskStateSubmitted), string(priority), in.ProviderName, in.TriggeringEventID,
		authorized, input, []byte(metadata), in.ScheduledFor, in.ExpiresAt,
	)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return task, nil
}

func (s *taskStore) GetByID(ctx context.Context, taskID uuid.UUID) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, taskID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *taskStore) GetByTriggeringEvent(ctx context.Context, eventLogID int64, microfoxID string) (*model.Task, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE triggering_event_id = $1 AND microfox_id = $2`,
		eventLogID, microfoxID,
	)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (s *taskStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strIDs := make([]string, len(ids))
	for i, taskID := range ids {
		strIDs[i] = taskID.String()
	}
	rows, err := s.q.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ANY($1::uuid[]) ORDER BY created_at`, strIDs)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func (s *taskStore) UpdateState(ctx context.Context, taskID uuid.UUID, state model.TaskState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid task state %q", state)
	}
	tag, err := s.q.Exec(ctx, `UPDATE tasks SET state = $2, updated_at = now() WHERE id = $1`, taskID, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *taskStore) ListRecent(ctx context.Context, microfoxID, provider string, limit int32) ([]model.Task, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE microfox_id = $1 AND provider_name = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		microfoxID, provider, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

func collectTasks(rows pgx.Rows) ([]model.Task, error) {
	defer rows.Close()
	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		task     model.Task
		taskType string
		state    string
		priority string
		input    []byte
		output   []byte
		metadata []byte
	)
	err := row.Scan(
		&task.ID,
		&task.ContextID,
		&task.MicrofoxID,
		&task.Name,
		&task.AIDescription,
		&taskType,
		&state,
		&priority,
		&task.ProviderName,
		&task.TriggeringEventID,
		&task.AuthorizedUsers,
		&input,
		&output,
		&metadata,
		&task.ScheduledFor,
		&task.ExpiresAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.TaskType = model.TaskType(taskType)
	task.Status = model.TaskStatus{State: model.TaskState(state)}
	task.Priority = model.TaskPriority(priority)
	task.Input = input
	task.Output = output
	task.Metadata = metadata
	return &task, nil
}
