package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

const taskColumns = `id, title, COALESCE(description, '') AS description, COALESCE(event_id, '') AS event_id,
	COALESCE(employee_id, '') AS employee_id, COALESCE(supervisor_id, '') AS supervisor_id,
	target_value, done_value, priority, COALESCE(start_date, '') AS start_date,
	COALESCE(due_date, '') AS due_date, status, progress_mode, COALESCE(created_by, '') AS created_by,
	created_at, updated_at, completed_at`

// TaskFilter narrows ListTasks. Zero fields match everything; cancelled tasks
// are excluded unless IncludeCancelled is set.
type TaskFilter struct {
	EmployeeID   string
	SupervisorID string
	EventID      string
	// Participant matches the task employee or the assignee of a live stage.
	Participant      string
	Status           model.Status
	IncludeCancelled bool
}

// CreateTask inserts a task together with its initial stages.
func (q *Queries) CreateTask(ctx context.Context, t *model.Task, stages []model.Stage) error {
	if !t.Status.IsValid() || t.Status == model.StatusOverdue {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if !t.ProgressMode.IsValid() {
		return fmt.Errorf("invalid progress mode: %s", t.ProgressMode)
	}

	_, err := q.exec(ctx, `
		INSERT INTO tasks (id, title, description, event_id, employee_id, supervisor_id, target_value, done_value,
			priority, start_date, due_date, status, progress_mode, created_by, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullable(t.Description), nullable(t.EventID), nullable(t.EmployeeID), nullable(t.SupervisorID),
		t.TargetValue, t.DoneValue, t.Priority, nullable(t.StartDate), nullable(t.DueDate), t.Status,
		t.ProgressMode, nullable(t.CreatedBy), t.CreatedAt, t.UpdatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	for i := range stages {
		if err := q.CreateStage(ctx, &stages[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves a task by ID, including cancelled tasks.
func (q *Queries) GetTask(ctx context.Context, id string) (*model.Task, error) {
	t := &model.Task{}
	err := q.get(ctx, t, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// UpdateTask writes every mutable column of t.
func (q *Queries) UpdateTask(ctx context.Context, t *model.Task) error {
	if !t.Status.IsValid() || t.Status == model.StatusOverdue {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	result, err := q.exec(ctx, `
		UPDATE tasks SET title = ?, description = ?, event_id = ?, employee_id = ?, supervisor_id = ?,
			target_value = ?, done_value = ?, priority = ?, start_date = ?, due_date = ?, status = ?,
			progress_mode = ?, updated_at = ?, completed_at = ?
		WHERE id = ?`,
		t.Title, nullable(t.Description), nullable(t.EventID), nullable(t.EmployeeID), nullable(t.SupervisorID),
		t.TargetValue, t.DoneValue, t.Priority, nullable(t.StartDate), nullable(t.DueDate), t.Status,
		t.ProgressMode, t.UpdatedAt, t.CompletedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return mustAffect(result, "task", t.ID)
}

// ListTasks returns tasks matching f, most urgent due date first.
func (q *Queries) ListTasks(ctx context.Context, f TaskFilter) ([]model.Task, error) {
	var where []string
	var args []any
	if !f.IncludeCancelled {
		where = append(where, "status <> ?")
		args = append(args, model.StatusCancelled)
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.SupervisorID != "" {
		where = append(where, "supervisor_id = ?")
		args = append(args, f.SupervisorID)
	}
	if f.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Participant != "" {
		where = append(where, `(employee_id = ? OR EXISTS (
			SELECT 1 FROM task_stages s WHERE s.task_id = tasks.id AND s.assigned_to = ? AND s.status <> ?))`)
		args = append(args, f.Participant, f.Participant, model.StageCancelled)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date, created_at, id`

	var tasks []model.Task
	if err := q.sel(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// deleteTaskRows removes a task and every child row. Children go first so
// foreign keys hold at each step.
func (q *Queries) deleteTaskRows(ctx context.Context, id string) ([]string, error) {
	var stored []string
	if err := q.sel(ctx, &stored, `SELECT stored_name FROM attachments WHERE task_id = ? ORDER BY stored_name`, id); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}

	steps := []struct{ what, query string }{
		{"stage updates", `DELETE FROM stage_updates WHERE stage_id IN (SELECT id FROM task_stages WHERE task_id = ?)`},
		{"stages", `DELETE FROM task_stages WHERE task_id = ?`},
		{"task updates", `DELETE FROM task_updates WHERE task_id = ?`},
		{"approvals", `DELETE FROM approvals WHERE task_id = ?`},
		{"attachments", `DELETE FROM attachments WHERE task_id = ?`},
		{"email logs", `DELETE FROM email_logs WHERE task_id = ?`},
	}
	for _, step := range steps {
		if _, err := q.exec(ctx, step.query, id); err != nil {
			return nil, fmt.Errorf("failed to delete %s: %w", step.what, err)
		}
	}

	result, err := q.exec(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete task: %w", err)
	}
	if err := mustAffect(result, "task", id); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteTask permanently removes a task with its stages, audit rows,
// approvals, attachment metadata and email logs in one transaction. It returns
// the stored names of the removed attachments so their files can be cleaned
// up after commit.
func (db *DB) DeleteTask(ctx context.Context, id string) ([]string, error) {
	var stored []string
	err := db.InTx(ctx, func(q *Queries) error {
		var err error
		stored, err = q.deleteTaskRows(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}
