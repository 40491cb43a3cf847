package workflow

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/progress"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// StageProgress is the input of UpdateStageProgress. MarkDone sets the
// progress to exactly 100.
type StageProgress struct {
	Progress float64
	MarkDone bool
	Note     string
}

// ParseProgress parses a user-entered progress value.
func ParseProgress(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &model.ValidationError{Field: "progress", Message: fmt.Sprintf("%q is not a number", s)}
	}
	return v, nil
}

// directStatus is the status a simple-mode task moves to after a direct
// update. Terminal statuses never change.
func directStatus(current model.Status, target, done float64) model.Status {
	switch {
	case current.IsTerminal():
		return current
	case target > 0 && done >= target:
		return model.StatusPendingApproval
	case done > 0:
		return model.StatusInProgress
	default:
		return model.StatusNew
	}
}

// UpdateDirectProgress records a new done value for a simple-mode task. The
// audit row is written first; the value is stored as submitted, not clamped
// against the target.
func (e *Engine) UpdateDirectProgress(ctx context.Context, a model.Actor, taskID string, done float64, note string) (*status.View, error) {
	if err := validNumber("done_value", done); err != nil {
		return nil, err
	}

	var t *model.Task
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		var err error
		t, err = e.loadTask(ctx, q, taskID)
		if err != nil {
			return err
		}
		stages, err := q.ListStages(ctx, taskID)
		if err != nil {
			return err
		}
		if !canUpdateDirect(a, *t, stages) {
			return denied(a, "update", taskID)
		}
		if t.ProgressMode == model.ModeStages {
			return fmt.Errorf("task %s is tracked by stages: %w", taskID, model.ErrInvalidState)
		}

		now := e.now()
		update := &model.TaskUpdate{
			ID:        model.NewRecordID(),
			TaskID:    taskID,
			DoneValue: done,
			Note:      strings.TrimSpace(note),
			CreatedBy: a.ID,
			CreatedAt: now,
		}
		if err := q.AddTaskUpdate(ctx, update); err != nil {
			return err
		}

		view := e.resolver.Resolve(*t)
		e.setStatus(t, directStatus(view.Status, t.TargetValue, done))
		t.DoneValue = done
		t.UpdatedAt = now
		return q.UpdateTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	v := e.resolver.Resolve(*t)
	return &v, nil
}

// UpdateStageProgress records progress on a live stage and re-aggregates its
// task. The task status follows the stages unless it is already completed.
func (e *Engine) UpdateStageProgress(ctx context.Context, a model.Actor, stageID string, in StageProgress) (*status.View, error) {
	p := progress.Clamp(in.Progress)
	if in.MarkDone {
		p = 100
	}

	var t *model.Task
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		s, task, err := e.loadStage(ctx, q, stageID)
		if err != nil {
			return err
		}
		t = task
		if !canUpdateStage(a, *t, *s) {
			return denied(a, "update", stageID)
		}

		now := e.now()
		s.Progress = p
		s.Status = progress.StageStatusFor(p)
		s.UpdatedAt = now
		if err := q.UpdateStage(ctx, s); err != nil {
			return err
		}
		update := &model.StageUpdate{
			ID:        model.NewRecordID(),
			StageID:   stageID,
			Progress:  p,
			Note:      strings.TrimSpace(in.Note),
			UpdatedBy: a.ID,
			CreatedAt: now,
		}
		if err := q.AddStageUpdate(ctx, update); err != nil {
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
