package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// StageMeta holds the stage fields UpdateStageMeta changes; nil fields are
// kept.
type StageMeta struct {
	Name       *string
	AssignedTo *string
	SortOrder  *int
	Weight     *float64
}

// AddStage appends a stage to a task. A simple-mode task switches to stages
// mode with target 100, done 0 and status new before the stage is added.
func (e *Engine) AddStage(ctx context.Context, a model.Actor, taskID string, spec StageSpec) (*model.Stage, error) {
	name := spec.name()
	if name == "" {
		return nil, &model.ValidationError{Field: "stage", Message: "name or template key required"}
	}
	if err := validNumber("weight", spec.Weight); err != nil {
		return nil, err
	}
	if err := e.checkUser(ctx, "assigned_to", spec.AssignedTo); err != nil {
		return nil, err
	}

	var t *model.Task
	var s *model.Stage
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		var err error
		t, err = e.loadTask(ctx, q, taskID)
		if err != nil {
			return err
		}
		if !canManage(a, *t) {
			return denied(a, "add stage to", taskID)
		}
		if e.resolver.Resolve(*t).Status == model.StatusCompleted {
			return fmt.Errorf("task %s is completed: %w", taskID, model.ErrInvalidState)
		}

		now := e.now()
		if t.ProgressMode != model.ModeStages {
			t.ProgressMode = model.ModeStages
			t.TargetValue = model.StagesTarget
			t.DoneValue = 0
			e.setStatus(t, model.StatusNew)
			t.UpdatedAt = now
			if err := q.UpdateTask(ctx, t); err != nil {
				return err
			}
		}

		last, err := q.MaxStageOrder(ctx, taskID)
		if err != nil {
			return err
		}
		s = &model.Stage{
			ID:         model.GenerateID(model.KindStage),
			TaskID:     taskID,
			Key:        spec.Key,
			Name:       name,
			Weight:     spec.Weight,
			AssignedTo: spec.AssignedTo,
			Status:     model.StageNew,
			SortOrder:  last + 1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := q.CreateStage(ctx, s); err != nil {
			return err
		}
		return e.recompute(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}

	if s.AssignedTo != "" {
		e.notifier.OnStageAssigned(ctx, *t, *s, "")
	}
	return s, nil
}

// UpdateStageMeta renames, reassigns, reorders or reweights a live stage and
// re-aggregates its task.
func (e *Engine) UpdateStageMeta(ctx context.Context, a model.Actor, stageID string, meta StageMeta) (*model.Stage, error) {
	if meta.Name != nil && strings.TrimSpace(*meta.Name) == "" {
		return nil, &model.ValidationError{Field: "stage_name", Message: "required"}
	}
	if meta.Weight != nil {
		if err := validNumber("weight", *meta.Weight); err != nil {
			return nil, err
		}
	}
	if meta.AssignedTo != nil {
		if err := e.checkUser(ctx, "assigned_to", *meta.AssignedTo); err != nil {
			return nil, err
		}
	}

	var t *model.Task
	var s *model.Stage
	var prevAssignee string
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		var err error
		s, t, err = e.loadStage(ctx, q, stageID)
		if err != nil {
			return err
		}
		if !canManage(a, *t) {
			return denied(a, "edit", stageID)
		}

		prevAssignee = s.AssignedTo
		if meta.Name != nil {
			s.Name = strings.TrimSpace(*meta.Name)
		}
		apply(&s.AssignedTo, meta.AssignedTo)
		apply(&s.SortOrder, meta.SortOrder)
		apply(&s.Weight, meta.Weight)
		s.UpdatedAt = e.now()
		if err := q.UpdateStage(ctx, s); err != nil {
			return err
		}
		return e.recompute(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}

	if s.AssignedTo != "" && s.AssignedTo != prevAssignee {
		e.notifier.OnStageAssigned(ctx, *t, *s, prevAssignee)
	}
	return s, nil
}

// CancelStage soft-cancels a stage. It stays stored for audit but no longer
// counts towards the task.
func (e *Engine) CancelStage(ctx context.Context, a model.Actor, stageID string) (*status.View, error) {
	var t *model.Task
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		s, task, err := e.loadStage(ctx, q, stageID)
		if err != nil {
			return err
		}
		t = task
		if !canManage(a, *t) {
			return denied(a, "cancel", stageID)
		}

		s.Status = model.StageCancelled
		s.UpdatedAt = e.now()
		if err := q.UpdateStage(ctx, s); err != nil {
			return err
		}
		return e.recompute(ctx, q, t)
	})
	if err != nil {
		return nil, err
	}

	v := e.resolver.Resolve(*t)
	return &v, nil
}
