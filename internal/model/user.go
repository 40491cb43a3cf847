package model

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleEmployee   Role = "employee"
)

func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleSupervisor || r == RoleEmployee
}

type User struct {
	ID          string    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Role        Role      `db:"role" json:"role"`
	Email       string    `db:"email" json:"email,omitempty"`
	CanApprove  bool      `db:"can_approve_tasks" json:"can_approve_tasks"`
	Active      bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Actor is the identity a workflow operation runs as.
type Actor struct {
	ID         string
	Role       Role
	CanApprove bool
}

func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, CanApprove: u.Role == RoleEmployee && u.CanApprove}
}

// System is the actor used by scheduled jobs.
var System = Actor{ID: "system", Role: RoleAdmin}
