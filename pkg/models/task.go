package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is a production stage. The set is closed and ordered.
type TaskStatus string

const (
	TaskStatusPending            TaskStatus = "pending"
	TaskStatusMockupDevelopment  TaskStatus = "mockup-development"
	TaskStatusPatternDevelopment TaskStatus = "pattern-development"
	TaskStatusMaterialSourcing   TaskStatus = "material-sourcing"
	TaskStatusPrinting           TaskStatus = "printing"
	TaskStatusEmbossing          TaskStatus = "embossing"
	TaskStatusDyeMaking          TaskStatus = "dye-making"
	TaskStatusRoughSample        TaskStatus = "rough-sample"
	TaskStatusCutting            TaskStatus = "cutting"
	TaskStatusStitching          TaskStatus = "stitching"
	TaskStatusCompleted          TaskStatus = "completed"
)

// TaskStatuses lists every production stage in workflow order.
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusMockupDevelopment,
	TaskStatusPatternDevelopment,
	TaskStatusMaterialSourcing,
	TaskStatusPrinting,
	TaskStatusEmbossing,
	TaskStatusDyeMaking,
	TaskStatusRoughSample,
	TaskStatusCutting,
	TaskStatusStitching,
	TaskStatusCompleted,
}

// legacyStatuses maps values written by older clients onto the canonical set.
// "In Progress" is deliberately absent: it has no single production stage.
var legacyStatuses = map[string]TaskStatus{
	"Pending":   TaskStatusPending,
	"Completed": TaskStatusCompleted,
}

// ErrUnknownTaskStatus is returned by ParseTaskStatus for values outside the enum.
var ErrUnknownTaskStatus = errors.New("unknown task status")

// ParseTaskStatus validates s against the production stages, migrating the
// legacy capitalised values. An empty string yields pending.
func ParseTaskStatus(s string) (TaskStatus, error) {
	if s == "" {
		return TaskStatusPending, nil
	}
	for _, st := range TaskStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	if st, ok := legacyStatuses[s]; ok {
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, s)
}

// Stage returns the position of st in the workflow, or -1 if unknown.
func (st TaskStatus) Stage() int {
	for i, s := range TaskStatuses {
		if s == st {
			return i
		}
	}
	return -1
}

func (st TaskStatus) Terminal() bool { return st == TaskStatusCompleted }

// Task is a single product item tracked through the production stages.
type Task struct {
	ID            uuid.UUID      `db:"id"          json:"id"`
	JobID         uuid.UUID      `db:"job_id"      json:"job_id"`
	CategoryID    *uuid.UUID     `db:"category_id" json:"category_id,omitempty"`
	Title         string         `db:"title"       json:"title"`
	Description   string         `db:"description" json:"description"`
	Color         string         `db:"color"       json:"color"`
	Size          string         `db:"size"        json:"size"`
	Quantity      int            `db:"quantity"    json:"quantity"`
	Status        TaskStatus     `db:"status"      json:"status"`
	Images        []string       `db:"images"      json:"images"`
	Documents     []string       `db:"documents"   json:"documents"`
	VoiceMessages []VoiceMessage `db:"-"           json:"voice_messages"`
	TextMessages  []TextMessage  `db:"-"           json:"text_messages"`
	History       []HistoryEntry `db:"-"           json:"history"`
	Version       int            `db:"version"     json:"version"`
	CreatedAt     time.Time      `db:"created_at"  json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"  json:"updated_at"`
}

// TaskSnapshot holds the mutable task fields captured before an update.
type TaskSnapshot struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Size        string     `json:"size"`
	Quantity    int        `json:"quantity"`
	Status      TaskStatus `json:"status"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
}

// HistoryEntry is an immutable record of a task's state before one update.
type HistoryEntry struct {
	ID            uuid.UUID    `db:"id"             json:"id"`
	TaskID        uuid.UUID    `db:"task_id"        json:"task_id"`
	UpdatedBy     uuid.UUID    `db:"updated_by"     json:"updated_by"`
	UpdatedAt     time.Time    `db:"updated_at"     json:"updated_at"`
	PreviousState TaskSnapshot `db:"previous_state" json:"previous_state"`
}

type VoiceMessage struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	AuthorID  uuid.UUID `db:"author_id"  json:"author_id"`
	URL       string    `db:"url"        json:"url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type TextMessage struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	AuthorID  uuid.UUID `db:"author_id"  json:"author_id"`
	Text      string    `db:"text"       json:"text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
