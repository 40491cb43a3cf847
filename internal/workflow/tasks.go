package workflow

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// NewTask is the input of CreateTask. With Stages the task starts in stages
// mode with a target of 100 and equal explicit weights.
type NewTask struct {
	Title        string
	Description  string
	EventID      string
	EmployeeID   string
	SupervisorID string
	TargetValue  float64
	Priority     model.Priority
	StartDate    string
	DueDate      string
	Stages       []StageSpec
}

// StageSpec describes a stage to create. Name falls back to the template name
// of Key.
type StageSpec struct {
	Key        string
	Name       string
	AssignedTo string
	Weight     float64
}

func (s StageSpec) name() string {
	if name := strings.TrimSpace(s.Name); name != "" {
		return name
	}
	if s.Key != "" {
		return model.StageName(s.Key)
	}
	return ""
}

// TaskEdit holds the fields UpdateTask changes; nil fields are kept.
type TaskEdit struct {
	Title        *string
	Description  *string
	EventID      *string
	EmployeeID   *string
	SupervisorID *string
	TargetValue  *float64
	Priority     *model.Priority
	StartDate    *string
	DueDate      *string
}

func validDate(field, v string) error {
	if v == "" {
		return nil
	}
	if _, ok := status.ParseDueDate(v, time.UTC); !ok {
		return &model.ValidationError{Field: field, Message: fmt.Sprintf("%q is not a date", v)}
	}
	return nil
}

func validNumber(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &model.ValidationError{Field: field, Message: "must be a number"}
	}
	if v < 0 {
		return &model.ValidationError{Field: field, Message: "must not be negative"}
	}
	return nil
}

// CreateTask creates a task, with its stages when given, and notifies every
// participant.
func (e *Engine) CreateTask(ctx context.Context, a model.Actor, in NewTask) (*status.View, error) {
	if a.Role != model.RoleAdmin && a.Role != model.RoleSupervisor {
		return nil, denied(a, "create", "tasks")
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, &model.ValidationError{Field: "title", Message: "required"}
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if !in.Priority.IsValid() {
		return nil, &model.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", in.Priority)}
	}
	if err := validNumber("target_value", in.TargetValue); err != nil {
		return nil, err
	}
	if err := validDate("start_date", in.StartDate); err != nil {
		return nil, err
	}
	if err := validDate("due_date", in.DueDate); err != nil {
		return nil, err
	}
	if in.SupervisorID == "" && a.Role == model.RoleSupervisor {
		in.SupervisorID = a.ID
	}
	if err := e.checkUser(ctx, "employee_id", in.EmployeeID); err != nil {
		return nil, err
	}
	if err := e.checkUser(ctx, "supervisor_id", in.SupervisorID); err != nil {
		return nil, err
	}
	for _, s := range in.Stages {
		if s.name() == "" {
			return nil, &model.ValidationError{Field: "stage", Message: "name or template key required"}
		}
		if err := e.checkUser(ctx, "stage.assigned_to", s.AssignedTo); err != nil {
			return nil, err
		}
	}

	now := e.now()
	t := &model.Task{
		ID:           model.GenerateID(model.KindTask),
		Title:        in.Title,
		Description:  in.Description,
		EventID:      in.EventID,
		EmployeeID:   in.EmployeeID,
		SupervisorID: in.SupervisorID,
		TargetValue:  in.TargetValue,
		Priority:     in.Priority,
		StartDate:    in.StartDate,
		DueDate:      in.DueDate,
		Status:       model.StatusNew,
		ProgressMode: model.ModeSimple,
		CreatedBy:    a.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var stages []model.Stage
	if n := len(in.Stages); n > 0 {
		t.ProgressMode = model.ModeStages
		t.TargetValue = model.StagesTarget
		weight := 100 / float64(n)
		for i, s := range in.Stages {
			stages = append(stages, model.Stage{
				ID:         model.GenerateID(model.KindStage),
				TaskID:     t.ID,
				Key:        s.Key,
				Name:       s.name(),
				Weight:     weight,
				AssignedTo: s.AssignedTo,
				Status:     model.StageNew,
				SortOrder:  i,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}

	err := e.db.InTx(ctx, func(q *db.Queries) error {
		return q.CreateTask(ctx, t, stages)
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{"task_id": t.ID, "stages": len(stages)}).Info("task created")
	e.notifier.OnTaskCreated(ctx, *t)

	v := e.resolver.Resolve(*t)
	return &v, nil
}

// UpdateTask edits a task's details. Status and done value are only changed
// through progress and approval; the target of a stages task stays at 100.
func (e *Engine) UpdateTask(ctx context.Context, a model.Actor, id string, edit TaskEdit) (*status.View, error) {
	if edit.Title != nil && strings.TrimSpace(*edit.Title) == "" {
		return nil, &model.ValidationError{Field: "title", Message: "required"}
	}
	if edit.Priority != nil && !edit.Priority.IsValid() {
		return nil, &model.ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", *edit.Priority)}
	}
	if edit.TargetValue != nil {
		if err := validNumber("target_value", *edit.TargetValue); err != nil {
			return nil, err
		}
	}
	if edit.StartDate != nil {
		if err := validDate("start_date", *edit.StartDate); err != nil {
			return nil, err
		}
	}
	if edit.DueDate != nil {
		if err := validDate("due_date", *edit.DueDate); err != nil {
			return nil, err
		}
	}
	if edit.EmployeeID != nil {
		if err := e.checkUser(ctx, "employee_id", *edit.EmployeeID); err != nil {
			return nil, err
		}
	}
	if edit.SupervisorID != nil {
		if err := e.checkUser(ctx, "supervisor_id", *edit.SupervisorID); err != nil {
			return nil, err
		}
	}

	var prevEmployee string
	var t *model.Task
	err := e.db.InTx(ctx, func(q *db.Queries) error {
		var err error
		t, err = e.loadTask(ctx, q, id)
		if err != nil {
			return err
		}
		if !canManage(a, *t) {
			return denied(a, "edit", id)
		}
		if edit.TargetValue != nil && t.ProgressMode == model.ModeStages && *edit.TargetValue != model.StagesTarget {
			return fmt.Errorf("target of stages task %s is fixed at %d: %w", id, model.StagesTarget, model.ErrInvalidState)
		}

		prevEmployee = t.EmployeeID
		apply(&t.Title, edit.Title)
		apply(&t.Description, edit.Description)
		apply(&t.EventID, edit.EventID)
		apply(&t.EmployeeID, edit.EmployeeID)
		apply(&t.SupervisorID, edit.SupervisorID)
		apply(&t.StartDate, edit.StartDate)
		apply(&t.DueDate, edit.DueDate)
		apply(&t.TargetValue, edit.TargetValue)
		apply(&t.Priority, edit.Priority)
		t.Title = strings.TrimSpace(t.Title)
		t.UpdatedAt = e.now()
		return q.UpdateTask(ctx, t)
	})
	if err != nil {
		return nil, err
	}

	if t.EmployeeID != "" && t.EmployeeID != prevEmployee {
		e.notifier.OnAssignmentChanged(ctx, *t, prevEmployee, t.EmployeeID)
	}

	v := e.resolver.Resolve(*t)
	return &v, nil
}

func apply[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Reassign changes the task employee.
func (e *Engine) Reassign(ctx context.Context, a model.Actor, id, employeeID string) (*status.View, error) {
	return e.UpdateTask(ctx, a, id, TaskEdit{EmployeeID: &employeeID})
}

// CancelTask soft-cancels a task. Afterwards it is treated as absent.
func (e *Engine) CancelTask(ctx context.Context, a model.Actor, id string) error {
	return e.db.InTx(ctx, func(q *db.Queries) error {
		t, err := e.loadTask(ctx, q, id)
		if err != nil {
			return err
		}
		if !canManage(a, *t) {
			return denied(a, "cancel", id)
		}
		if t.Status == model.StatusCompleted {
			return fmt.Errorf("task %s is completed: %w", id, model.ErrInvalidState)
		}
		e.setStatus(t, model.StatusCancelled)
		t.UpdatedAt = e.now()
		return q.UpdateTask(ctx, t)
	})
}

// HardDeleteTask removes a task and all of its child rows in one
// transaction. Cancelled tasks can be deleted too. Attachment files are
// removed after commit; failures there are logged only.
func (e *Engine) HardDeleteTask(ctx context.Context, a model.Actor, id string) error {
	t, err := e.db.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !canManage(a, *t) {
		return denied(a, "delete", id)
	}

	stored, err := e.db.DeleteTask(ctx, id)
	if err != nil {
		return err
	}
	e.logger.WithFields(logrus.Fields{"task_id": id, "attachments": len(stored)}).Info("task deleted")

	if e.removeFile == nil {
		return nil
	}
	for _, name := range stored {
		if err := e.removeFile(name); err != nil {
			e.logger.WithFields(logrus.Fields{"task_id": id, "file": name}).WithError(err).Warn("failed to remove attachment")
		}
	}
	return nil
}

// Remind sends a manual reminder email to the task employee.
func (e *Engine) Remind(ctx context.Context, a model.Actor, id, message string) error {
	t, err := e.loadTask(ctx, e.db.Queries, id)
	if err != nil {
		return err
	}
	if !canManage(a, *t) {
		return denied(a, "remind", id)
	}
	return e.notifier.SendManualReminder(ctx, *t, strings.TrimSpace(message))
}
