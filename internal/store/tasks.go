package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/area/internal/ir"
)

const taskColumns = `
	tasks.id, tasks.user_id, tasks.trigger_name, tasks.trigger_args, tasks.event_hash,
	tasks.action_name, tasks.action_params, tasks.service, tasks.requires_oauth, tasks.oauth_token`

// CreateTask inserts a task and returns it with its id and fingerprint.
// The fingerprint is always recomputed from Trigger and TriggerArgs; any
// value supplied by the caller is ignored.
func (c conn) CreateTask(ctx context.Context, task ir.Task) (ir.Task, error) {
	task.Fingerprint = ir.Fingerprint(task.Trigger, task.TriggerArgs)

	triggerArgs, err := marshalArgs(task.TriggerArgs)
	if err != nil {
		return ir.Task{}, fmt.Errorf("create task: %w", err)
	}
	reactionArgs, err := marshalArgs(task.ReactionArgs)
	if err != nil {
		return ir.Task{}, fmt.Errorf("create task: %w", err)
	}

	err = c.queryRow(ctx, `
		INSERT INTO tasks
		(user_id, trigger_name, trigger_args, event_hash, action_name, action_params, service, requires_oauth, oauth_token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		task.OwnerID,
		task.Trigger,
		triggerArgs,
		task.Fingerprint,
		task.ReactionName,
		reactionArgs,
		task.Service,
		task.RequiresOAuth,
		nullString(task.OAuthToken),
	).Scan(&task.ID)
	if err != nil {
		return ir.Task{}, fmt.Errorf("create task: %w", err)
	}

	return task, nil
}

// UpdateTask overwrites every column of an existing task, recomputing the
// fingerprint. Returns ErrNotFound if the task does not exist.
func (c conn) UpdateTask(ctx context.Context, task ir.Task) (ir.Task, error) {
	task.Fingerprint = ir.Fingerprint(task.Trigger, task.TriggerArgs)

	triggerArgs, err := marshalArgs(task.TriggerArgs)
	if err != nil {
		return ir.Task{}, fmt.Errorf("update task: %w", err)
	}
	reactionArgs, err := marshalArgs(task.ReactionArgs)
	if err != nil {
		return ir.Task{}, fmt.Errorf("update task: %w", err)
	}

	result, err := c.exec(ctx, `
		UPDATE tasks SET
			user_id = ?, trigger_name = ?, trigger_args = ?, event_hash = ?,
			action_name = ?, action_params = ?, service = ?, requires_oauth = ?, oauth_token = ?
		WHERE id = ?
	`,
		task.OwnerID,
		task.Trigger,
		triggerArgs,
		task.Fingerprint,
		task.ReactionName,
		reactionArgs,
		task.Service,
		task.RequiresOAuth,
		nullString(task.OAuthToken),
		task.ID,
	)
	if err != nil {
		return ir.Task{}, fmt.Errorf("update task %d: %w", task.ID, err)
	}
	if err := expectOneRow(result); err != nil {
		return ir.Task{}, fmt.Errorf("update task %d: %w", task.ID, err)
	}

	return task, nil
}

// SetTaskOAuthToken replaces the cached access token of a task.
func (c conn) SetTaskOAuthToken(ctx context.Context, taskID int64, token string) error {
	result, err := c.exec(ctx, `UPDATE tasks SET oauth_token = ? WHERE id = ?`, nullString(token), taskID)
	if err != nil {
		return fmt.Errorf("set task %d token: %w", taskID, err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("set task %d token: %w", taskID, err)
	}
	return nil
}

// DeleteTask removes a task. Returns ErrNotFound if it does not exist.
func (c conn) DeleteTask(ctx context.Context, id int64) error {
	result, err := c.exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	if err := expectOneRow(result); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// GetTask returns a task by id.
func (c conn) GetTask(ctx context.Context, id int64) (ir.Task, error) {
	rows, err := c.query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tasks.id = ?`, id)
	if err != nil {
		return ir.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return ir.Task{}, fmt.Errorf("get task %d: %w", id, err)
	}
	if len(tasks) == 0 {
		return ir.Task{}, fmt.Errorf("get task %d: %w", id, ErrNotFound)
	}
	return tasks[0], nil
}

// FindByFingerprint returns every task whose fingerprint equals fp,
// ordered by id.
func (c conn) FindByFingerprint(ctx context.Context, fp string) ([]ir.Task, error) {
	rows, err := c.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tasks.event_hash = ?
		ORDER BY tasks.id ASC
	`, fp)
	if err != nil {
		return nil, fmt.Errorf("find tasks by fingerprint: %w", err)
	}
	return scanTasks(rows)
}

// FindByTriggerAndOwnerEmail returns the tasks of trigger owned by the
// identity with the given email, ordered by id.
func (c conn) FindByTriggerAndOwnerEmail(ctx context.Context, trigger, email string) ([]ir.Task, error) {
	rows, err := c.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		JOIN users ON users.id = tasks.user_id
		WHERE tasks.trigger_name = ? AND users.email = ?
		ORDER BY tasks.id ASC
	`, trigger, email)
	if err != nil {
		return nil, fmt.Errorf("find tasks by trigger and owner: %w", err)
	}
	return scanTasks(rows)
}

// ListTasksByOwner returns the tasks of one identity, ordered by id.
func (c conn) ListTasksByOwner(ctx context.Context, ownerID int64) ([]ir.Task, error) {
	rows, err := c.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tasks.user_id = ?
		ORDER BY tasks.id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by owner: %w", err)
	}
	return scanTasks(rows)
}

// ListTasksByService returns the tasks tagged with service, ordered by id.
func (c conn) ListTasksByService(ctx context.Context, service string) ([]ir.Task, error) {
	rows, err := c.query(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE tasks.service = ?
		ORDER BY tasks.id ASC
	`, service)
	if err != nil {
		return nil, fmt.Errorf("list tasks by service: %w", err)
	}
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]ir.Task, error) {
	defer rows.Close()

	var tasks []ir.Task
	for rows.Next() {
		var (
			t            ir.Task
			triggerArgs  string
			reactionArgs string
			oauthToken   sql.NullString
		)
		if err := rows.Scan(
			&t.ID,
			&t.OwnerID,
			&t.Trigger,
			&triggerArgs,
			&t.Fingerprint,
			&t.ReactionName,
			&reactionArgs,
			&t.Service,
			&t.RequiresOAuth,
			&oauthToken,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		var err error
		if t.TriggerArgs, err = unmarshalArgs(triggerArgs); err != nil {
			return nil, fmt.Errorf("task %d trigger_args: %w", t.ID, err)
		}
		if t.ReactionArgs, err = unmarshalArgs(reactionArgs); err != nil {
			return nil, fmt.Errorf("task %d action_params: %w", t.ID, err)
		}
		t.OAuthToken = oauthToken.String
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// marshalArgs encodes a positional argument list. nil encodes as [].
func marshalArgs(args []string) (string, error) {
	if args == nil {
		args = []string{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalArgs(s string) ([]string, error) {
	args := []string{}
	if s == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, err
	}
	return args, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isNoRows reports whether err is sql.ErrNoRows.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
