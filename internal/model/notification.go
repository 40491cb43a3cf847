package model

import "time"

const (
	NotifyTaskAssigned   = "task_assigned"
	NotifyTaskReassigned = "task_reassigned"
	NotifyStageAssigned  = "stage_assigned"
	NotifyTaskReminder   = "task_reminder"
)

// Notification is an in-app message for one user.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Title     string    `db:"title" json:"title"`
	Body      string    `db:"body" json:"body,omitempty"`
	URL       string    `db:"url" json:"url,omitempty"`
	MetaJSON  string    `db:"meta_json" json:"meta,omitempty"`
	Read      bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	EmailDueSoon        = "due_soon"
	EmailManualReminder = "manual_task_reminder"
)

// EmailLog is one sent email. (Type, TaskID, StageID, ToEmail, Ref) is unique
// in storage; Ref is a calendar day for scheduled reminders.
type EmailLog struct {
	ID       string    `db:"id"`
	Type     string    `db:"type"`
	TaskID   string    `db:"task_id"`
	StageID  string    `db:"stage_id"`
	ToEmail  string    `db:"to_email"`
	Ref      string    `db:"ref"`
	MetaJSON string    `db:"meta_json"`
	SentAt   time.Time `db:"sent_at"`
}

// Reminder is a task due within the reminder window together with the
// employee it should be sent to.
type Reminder struct {
	TaskID       string `db:"task_id"`
	Title        string `db:"title"`
	DueDate      string `db:"due_date"`
	EmployeeID   string `db:"employee_id"`
	Email        string `db:"email"`
	EmployeeName string `db:"display_name"`
}
