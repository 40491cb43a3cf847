package model

import "time"

// TaskUpdate records one direct progress submission. Rows are never modified.
type TaskUpdate struct {
	ID        string    `db:"id" json:"id"`
	TaskID    string    `db:"task_id" json:"task_id"`
	DoneValue float64   `db:"done_value" json:"done_value"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StageUpdate records one stage progress submission. Rows are never modified.
type StageUpdate struct {
	ID        string    `db:"id" json:"id"`
	StageID   string    `db:"stage_id" json:"stage_id"`
	Progress  float64   `db:"progress" json:"progress"`
	Note      string    `db:"note" json:"note,omitempty"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Approval is an append-only decision on a task awaiting approval.
type Approval struct {
	ID         string    `db:"id" json:"id"`
	TaskID     string    `db:"task_id" json:"task_id"`
	Decision   Decision  `db:"decision" json:"decision"`
	Comment    string    `db:"comment" json:"comment,omitempty"`
	ApprovedBy string    `db:"approved_by" json:"approved_by"`
	ApprovedAt time.Time `db:"approved_at" json:"approved_at"`
}

// Attachment is the metadata of an uploaded file. The file itself lives
// outside the store under StoredName.
type Attachment struct {
	ID           string    `db:"id" json:"id"`
	TaskID       string    `db:"task_id" json:"task_id"`
	StoredName   string    `db:"stored_name" json:"stored_name"`
	OriginalName string    `db:"original_name" json:"original_name"`
	MimeType     string    `db:"mime_type" json:"mime_type"`
	SizeBytes    int64     `db:"size_bytes" json:"size_bytes"`
	UploadedBy   string    `db:"uploaded_by" json:"uploaded_by"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}
