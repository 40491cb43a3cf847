package workflow

import (
	"context"

	"github.com/moekrh-design/kpi-team-system/internal/db"
	"github.com/moekrh-design/kpi-team-system/internal/model"
	"github.com/moekrh-design/kpi-team-system/internal/status"
)

// ListFilter narrows ListTasks and Summary. Status matches the displayed
// status, so StatusOverdue selects overdue tasks.
type ListFilter struct {
	EmployeeID string
	EventID    string
	Status     model.Status
}

// Summary counts visible tasks by displayed status.
type Summary struct {
	Total     int                  `json:"total"`
	ByStatus  map[model.Status]int `json:"by_status"`
	Completed float64              `json:"completion_rate"`
}

// History is the audit trail of a task, for display only.
type History struct {
	Stages       []model.Stage       `json:"stages"`
	TaskUpdates  []model.TaskUpdate  `json:"task_updates"`
	StageUpdates []model.StageUpdate `json:"stage_updates"`
	Approvals    []model.Approval    `json:"approvals"`
}

// Task returns the resolved view of a task the actor may see.
func (e *Engine) Task(ctx context.Context, a model.Actor, id string) (*status.View, []model.Stage, error) {
	t, err := e.loadTask(ctx, e.db.Queries, id)
	if err != nil {
		return nil, nil, err
	}
	stages, err := e.db.ListStages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !canView(a, *t, stages) {
		return nil, nil, denied(a, "view", id)
	}
	v := e.resolver.Resolve(*t)
	return &v, stages, nil
}

// ListTasks returns the live tasks visible to the actor: everything for
// admins, owned tasks for supervisors, and tasks an employee works on.
func (e *Engine) ListTasks(ctx context.Context, a model.Actor, f ListFilter) ([]status.View, error) {
	filter := db.TaskFilter{EmployeeID: f.EmployeeID, EventID: f.EventID}
	switch a.Role {
	case model.RoleAdmin:
	case model.RoleSupervisor:
		filter.SupervisorID = a.ID
	case model.RoleEmployee:
		filter.Participant = a.ID
	default:
		return nil, denied(a, "list", "tasks")
	}

	tasks, err := e.db.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]status.View, 0, len(tasks))
	for _, t := range tasks {
		v := e.resolver.Resolve(t)
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// Summary reports the visible tasks by displayed status. Overdue tasks are
// counted as overdue, not under their stored status.
func (e *Engine) Summary(ctx context.Context, a model.Actor, f ListFilter) (*Summary, error) {
	views, err := e.ListTasks(ctx, a, f)
	if err != nil {
		return nil, err
	}
	s := &Summary{ByStatus: map[model.Status]int{}}
	for _, v := range views {
		s.Total++
		s.ByStatus[v.Status]++
	}
	if s.Total > 0 {
		s.Completed = float64(s.ByStatus[model.StatusCompleted]) / float64(s.Total)
	}
	return s, nil
}

// History returns the stages and audit rows of a task the actor may see.
func (e *Engine) History(ctx context.Context, a model.Actor, id string) (*History, error) {
	_, stages, err := e.Task(ctx, a, id)
	if err != nil {
		return nil, err
	}
	h := &History{Stages: stages}
	if h.TaskUpdates, err = e.db.ListTaskUpdates(ctx, id); err != nil {
		return nil, err
	}
	if h.StageUpdates, err = e.db.ListStageUpdates(ctx, id); err != nil {
		return nil, err
	}
	if h.Approvals, err = e.db.ListApprovals(ctx, id); err != nil {
		return nil, err
	}
	return h, nil
}
