package db

import (
	"context"
	"fmt"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

// AddTaskUpdate appends a direct progress record.
func (q *Queries) AddTaskUpdate(ctx context.Context, u *model.TaskUpdate) error {
	_, err := q.exec(ctx, `
		INSERT INTO task_updates (id, task_id, done_value, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.TaskID, u.DoneValue, nullable(u.Note), u.CreatedBy, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add task update: %w", err)
	}
	return nil
}

// ListTaskUpdates returns a task's direct progress records, oldest first.
func (q *Queries) ListTaskUpdates(ctx context.Context, taskID string) ([]model.TaskUpdate, error) {
	var updates []model.TaskUpdate
	err := q.sel(ctx, &updates, `
		SELECT id, task_id, done_value, COALESCE(note, '') AS note, created_by, created_at
		FROM task_updates WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task updates: %w", err)
	}
	return updates, nil
}

// AddStageUpdate appends a stage progress record.
func (q *Queries) AddStageUpdate(ctx context.Context, u *model.StageUpdate) error {
	_, err := q.exec(ctx, `
		INSERT INTO stage_updates (id, stage_id, progress, note, updated_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.StageID, u.Progress, nullable(u.Note), u.UpdatedBy, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add stage update: %w", err)
	}
	return nil
}

// ListStageUpdates returns the progress records of every stage of a task,
// oldest first.
func (q *Queries) ListStageUpdates(ctx context.Context, taskID string) ([]model.StageUpdate, error) {
	var updates []model.StageUpdate
	err := q.sel(ctx, &updates, `
		SELECT u.id, u.stage_id, u.progress, COALESCE(u.note, '') AS note, u.updated_by, u.created_at
		FROM stage_updates u
		JOIN task_stages s ON s.id = u.stage_id
		WHERE s.task_id = ?
		ORDER BY u.created_at, u.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage updates: %w", err)
	}
	return updates, nil
}

// AddApproval appends an approval decision.
func (q *Queries) AddApproval(ctx context.Context, a *model.Approval) error {
	if !a.Decision.IsValid() {
		return fmt.Errorf("invalid decision: %s", a.Decision)
	}
	_, err := q.exec(ctx, `
		INSERT INTO approvals (id, task_id, decision, comment, approved_by, approved_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.Decision, nullable(a.Comment), a.ApprovedBy, a.ApprovedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add approval: %w", err)
	}
	return nil
}

// ListApprovals returns a task's decisions, oldest first.
func (q *Queries) ListApprovals(ctx context.Context, taskID string) ([]model.Approval, error) {
	var approvals []model.Approval
	err := q.sel(ctx, &approvals, `
		SELECT id, task_id, decision, COALESCE(comment, '') AS comment, approved_by, approved_at
		FROM approvals WHERE task_id = ? ORDER BY approved_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

// AddAttachment records the metadata of a file stored for a task.
func (q *Queries) AddAttachment(ctx context.Context, a *model.Attachment) error {
	_, err := q.exec(ctx, `
		INSERT INTO attachments (id, task_id, stored_name, original_name, mime_type, size_bytes, uploaded_by, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.StoredName, a.OriginalName, a.MimeType, a.SizeBytes, a.UploadedBy, a.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add attachment: %w", err)
	}
	return nil
}

// ListAttachments returns a task's attachment metadata.
func (q *Queries) ListAttachments(ctx context.Context, taskID string) ([]model.Attachment, error) {
	var attachments []model.Attachment
	err := q.sel(ctx, &attachments, `
		SELECT id, task_id, stored_name, original_name, mime_type, size_bytes, uploaded_by, uploaded_at
		FROM attachments WHERE task_id = ? ORDER BY uploaded_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return attachments, nil
}
