package model

import "time"

type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusPendingApproval Status = "pending_approval"
	StatusCompleted       Status = "completed"
	StatusOverdue         Status = "overdue"
	StatusCancelled       Status = "cancelled"
)

// IsValid reports whether s is a known task status. Overdue is valid as a
// displayed status even though it is never written to storage.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusPendingApproval, StatusCompleted, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no progress update may change s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ProgressMode string

const (
	ModeSimple ProgressMode = "simple"
	ModeStages ProgressMode = "stages"
)

func (m ProgressMode) IsValid() bool {
	return m == ModeSimple || m == ModeStages
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// StagesTarget is the fixed target of a task in stages mode.
const StagesTarget = 100

// Task is the stored task row. Its Status is the persisted column; use the
// status package to obtain the displayed status.
type Task struct {
	ID           string       `db:"id" json:"id"`
	Title        string       `db:"title" json:"title"`
	Description  string       `db:"description" json:"description,omitempty"`
	EventID      string       `db:"event_id" json:"event_id,omitempty"`
	EmployeeID   string       `db:"employee_id" json:"employee_id,omitempty"`
	SupervisorID string       `db:"supervisor_id" json:"supervisor_id,omitempty"`
	TargetValue  float64      `db:"target_value" json:"target_value"`
	DoneValue    float64      `db:"done_value" json:"done_value"`
	Priority     Priority     `db:"priority" json:"priority"`
	StartDate    string       `db:"start_date" json:"start_date,omitempty"`
	DueDate      string       `db:"due_date" json:"due_date,omitempty"`
	Status       Status       `db:"status" json:"status"`
	ProgressMode ProgressMode `db:"progress_mode" json:"progress_mode"`
	CreatedBy    string       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}

type StageStatus string

const (
	StageNew        StageStatus = "new"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageCancelled  StageStatus = "cancelled"
)

func (s StageStatus) IsValid() bool {
	switch s {
	case StageNew, StageInProgress, StageCompleted, StageCancelled:
		return true
	}
	return false
}

// Stage is a weighted sub-unit of a task. A Weight of 0 means the stage takes
// an equal share of the live stages.
type Stage struct {
	ID         string      `db:"id" json:"id"`
	TaskID     string      `db:"task_id" json:"task_id"`
	Key        string      `db:"stage_key" json:"key,omitempty"`
	Name       string      `db:"stage_name" json:"name"`
	Weight     float64     `db:"weight" json:"weight"`
	AssignedTo string      `db:"assigned_to" json:"assigned_to,omitempty"`
	Progress   float64     `db:"progress" json:"progress"`
	Status     StageStatus `db:"status" json:"status"`
	SortOrder  int         `db:"sort_order" json:"sort_order"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// Live reports whether the stage takes part in aggregation.
func (s Stage) Live() bool {
	return s.Status != StageCancelled
}
