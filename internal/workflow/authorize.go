package workflow

import (
	"fmt"

	"github.com/moekrh-design/kpi-team-system/internal/model"
)

func denied(a model.Actor, action, id string) error {
	return fmt.Errorf("%s cannot %s %s: %w", a.ID, action, id, model.ErrNotAuthorized)
}

// owns reports whether a is the supervisor of t.
func owns(a model.Actor, t model.Task) bool {
	return a.Role == model.RoleSupervisor && t.SupervisorID == a.ID
}

// canManage covers creating, editing, cancelling and deleting a task and its
// stages, and sending manual reminders.
func canManage(a model.Actor, t model.Task) bool {
	return a.Role == model.RoleAdmin || owns(a, t)
}

// participates reports whether user is the task employee or the assignee of
// one of its live stages.
func participates(userID string, t model.Task, stages []model.Stage) bool {
	if userID == "" {
		return false
	}
	if t.EmployeeID == userID {
		return true
	}
	for _, s := range stages {
		if s.Live() && s.AssignedTo == userID {
			return true
		}
	}
	return false
}

func canView(a model.Actor, t model.Task, stages []model.Stage) bool {
	switch a.Role {
	case model.RoleAdmin:
		return true
	case model.RoleSupervisor:
		return owns(a, t)
	case model.RoleEmployee:
		return participates(a.ID, t, stages)
	}
	return false
}

// canUpdateDirect is the rule for simple-mode progress.
func canUpdateDirect(a model.Actor, t model.Task, stages []model.Stage) bool {
	return canView(a, t, stages)
}

// canUpdateStage lets an employee touch only a stage assigned to them.
func canUpdateStage(a model.Actor, t model.Task, s model.Stage) bool {
	switch a.Role {
	case model.RoleAdmin:
		return true
	case model.RoleSupervisor:
		return owns(a, t)
	case model.RoleEmployee:
		return s.AssignedTo != "" && s.AssignedTo == a.ID
	}
	return false
}

func canApprove(a model.Actor, t model.Task) bool {
	switch a.Role {
	case model.RoleAdmin:
		return true
	case model.RoleSupervisor:
		return owns(a, t)
	case model.RoleEmployee:
		return a.CanApprove
	}
	return false
}
