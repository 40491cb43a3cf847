package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// approvalStatus is where a pending task goes after a decision. Approval
// completes the task only when its done value has reached a positive target.
func approvalStatus(d model.Decision, target, done float64) model.Status {
	if d == model.DecisionApproved && target > 0 && done >= target {
		return model.StatusCompleted
	}
	return model.StatusInProgress
}

// RecordApproval appends a decision on a task awaiting approval and moves it
// to completed or back to in_progress. It is the only way to complete a task.
func (e *Engine) RecordApproval(ctx context.Context, a model.Actor, taskID string, decision model.Decision, comment string) (*status.View, error) {
	if !decision.IsValid() {
		return nil, &model.ValidationError{
			Field:   "decision",
			Message: fmt.Sprintf("%q is not approved or rejected", decision),
			Err:     model.ErrInvalidDecision,
		}
	}

	var t *model.Task
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		var err error
		t, err = e.loadTask(ctx, q, taskID)
		if err != nil {
			return err
		}
		if !canApprove(a, *t) {
			return denied(a, "approve", taskID)
		}
		if shown := e.resolver.Resolve(*t).Status; shown != model.StatusPendingApproval {
			return fmt.Errorf("%w: task %s is %s, not awaiting approval", model.ErrInvalidDecision, taskID, shown)
		}

		now := e.now()
		approval := &model.Approval{
			ID:         model.NewRecordID(),
			TaskID:     taskID,
			Decision:   decision,
			Comment:    strings.TrimSpace(comment),
			ApprovedBy: a.ID,
			ApprovedAt: now,
		}
		if err := q.AddApproval(ctx, approval); err != nil {
			return err
		}

		next := approvalStatus(decision, t.TargetValue, t.DoneValue)
		e.setStatus(t, next)
		if next == model.StatusCompleted {
			t.CompletedAt = &now
		}
		t.UpdatedAt = now
		return q.UpdateTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"task_id":  taskID,
		"decision": decision,
		"status":   t.Status,
	}).Info("approval recorded")

	v := e.resolver.Resolve(*t)
	return &v, nil
}
