package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"boltbridge/internal/errors"
)

// Schema creates the tasks table. Applied at startup; harmless when the
// table already exists.
const Schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             TEXT PRIMARY KEY,
	owner          TEXT NOT NULL DEFAULT '',
	prompt         TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL DEFAULT 'pending',
	implementation TEXT NOT NULL DEFAULT '',
	error          JSONB,
	token_usage    JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres is the lib/pq backed Store.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a Postgres-backed store and applies the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateTask inserts a new task record.
func (p *Postgres) CreateTask(ctx context.Context, task *Task) error {
	status := task.Status
	if status == "" {
		status = StatusPending
	}

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner, prompt, status)
		VALUES ($1, $2, $3, $4)`,
		task.ID, task.Owner, task.Prompt, string(status),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return errors.New("task already exists")
		}
		return errors.NewBackendError(errors.CodeDatabase, "insert task", err)
	}
	return nil
}

// ReadTask returns the task or errors.ErrTaskNotFound.
func (p *Postgres) ReadTask(ctx context.Context, id string) (*Task, error) {
	task := &Task{}
	var errJSON, usageJSON []byte

	err := p.db.QueryRowContext(ctx, `
		SELECT id, owner, prompt, status, implementation, error, token_usage, created_at, updated_at
		FROM tasks
		WHERE id = $1`, id,
	).Scan(
		&task.ID, &task.Owner, &task.Prompt, &task.Status, &task.Implementation,
		&errJSON, &usageJSON, &task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTaskNotFound
	} else if err != nil {
		return nil, errors.NewBackendError(errors.CodeDatabase, "read task", err)
	}

	if len(errJSON) > 0 {
		task.Error = &TaskError{}
		if err := json.Unmarshal(errJSON, task.Error); err != nil {
			return nil, errors.NewBackendError(errors.CodeDatabase, "decode task error column", err)
		}
	}
	if len(usageJSON) > 0 {
		task.TokenUsage = &TokenUsage{}
		if err := json.Unmarshal(usageJSON, task.TokenUsage); err != nil {
			return nil, errors.NewBackendError(errors.CodeDatabase, "decode token usage column", err)
		}
	}
	return task, nil
}

// UpdateTask applies a partial, single-row conditional update. A status
// change on a task already marked failed affects zero rows and is reported
// as errors.ErrInvalidTransition.
func (p *Postgres) UpdateTask(ctx context.Context, id string, update Update) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		sets = append(sets, "status = "+arg(string(*update.Status)))
	}
	if update.Implementation != nil {
		sets = append(sets, "implementation = "+arg(*update.Implementation))
	}
	if update.Error != nil {
		b, err := json.Marshal(update.Error)
		if err != nil {
			return errors.NewBackendError(errors.CodeDatabase, "encode task error column", err)
		}
		sets = append(sets, "error = "+arg(b))
	}
	if update.TokenUsage != nil {
		b, err := json.Marshal(update.TokenUsage)
		if err != nil {
			return errors.NewBackendError(errors.CodeDatabase, "encode token usage column", err)
		}
		sets = append(sets, "token_usage = "+arg(b))
	}

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = %s", strings.Join(sets, ", "), arg(id))
	if update.Status != nil && *update.Status != StatusFailed {
		// failed is terminal; the guard makes the update conditional so a
		// concurrent writer cannot resurrect a failed task.
		query += " AND status <> 'failed'"
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewBackendError(errors.CodeDatabase, "update task", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.NewBackendError(errors.CodeDatabase, "update task", err)
	}
	if affected == 0 {
		// Either the row is missing or the transition guard rejected it.
		if _, readErr := p.ReadTask(ctx, id); readErr != nil {
			return readErr
		}
		return errors.ErrInvalidTransition
	}
	return nil
}
