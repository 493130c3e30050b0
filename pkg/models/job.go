package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
)

// Job is a client order. Status is derived from the job's tasks and is never
// set by callers; TaskIDs is materialised from tasks.job_id.
type Job struct {
	ID         uuid.UUID   `db:"id"          json:"id"`
	HumanID    string      `db:"human_id"    json:"human_id"`
	ClientName string      `db:"client_name" json:"client_name"`
	CategoryID *uuid.UUID  `db:"category_id" json:"category_id,omitempty"`
	TaskIDs    []uuid.UUID `db:"-"           json:"task_ids"`
	Status     string      `db:"status"      json:"status"`
	CreatedBy  uuid.UUID   `db:"created_by"  json:"created_by"`
	CreatedAt  time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"  json:"updated_at"`
}

// HasTask reports whether id is listed in the job's task index.
func (j *Job) HasTask(id uuid.UUID) bool {
	for _, t := range j.TaskIDs {
		if t == id {
			return true
		}
	}
	return false
}
