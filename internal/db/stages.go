package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

const stageColumns = `id, task_id, COALESCE(stage_key, '') AS stage_key, stage_name, weight,
	COALESCE(assigned_to, '') AS assigned_to, progress, status, sort_order, created_at, updated_at`

// CreateStage inserts a stage for an existing task.
func (q *Queries) CreateStage(ctx context.Context, s *model.Stage) error {
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid stage status: %s", s.Status)
	}
	_, err := q.exec(ctx, `
		INSERT INTO task_stages (id, task_id, stage_key, stage_name, weight, assigned_to, progress, status,
			sort_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TaskID, nullable(s.Key), s.Name, s.Weight, nullable(s.AssignedTo), s.Progress, s.Status,
		s.SortOrder, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create stage: %w", err)
	}
	return nil
}

// GetStage retrieves a stage by ID, including cancelled stages.
func (q *Queries) GetStage(ctx context.Context, id string) (*model.Stage, error) {
	s := &model.Stage{}
	err := q.get(ctx, s, `SELECT `+stageColumns+` FROM task_stages WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("stage", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stage: %w", err)
	}
	return s, nil
}

// ListStages returns every stage of a task, cancelled ones included, in
// display order.
func (q *Queries) ListStages(ctx context.Context, taskID string) ([]model.Stage, error) {
	var stages []model.Stage
	err := q.sel(ctx, &stages, `SELECT `+stageColumns+` FROM task_stages WHERE task_id = ? ORDER BY sort_order, created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	return stages, nil
}

// MaxStageOrder returns the highest sort_order of a task's stages, or -1 when
// it has none.
func (q *Queries) MaxStageOrder(ctx context.Context, taskID string) (int, error) {
	var last int
	err := q.get(ctx, &last, `SELECT COALESCE(MAX(sort_order), -1) FROM task_stages WHERE task_id = ?`, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to get stage order: %w", err)
	}
	return last, nil
}

// UpdateStage writes the mutable columns of s.
func (q *Queries) UpdateStage(ctx context.Context, s *model.Stage) error {
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid stage status: %s", s.Status)
	}
	result, err := q.exec(ctx, `
		UPDATE task_stages SET stage_key = ?, stage_name = ?, weight = ?, assigned_to = ?, progress = ?,
			status = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		nullable(s.Key), s.Name, s.Weight, nullable(s.AssignedTo), s.Progress, s.Status, s.SortOrder, s.UpdatedAt, s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	return mustAffect(result, "stage", s.ID)
}
