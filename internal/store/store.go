package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrVersionConflict is returned when a task was modified after it was read.
var ErrVersionConflict = errors.New("version conflict")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// InTx runs fn against a transactional view of the store. The transaction
	// commits if fn returns nil and rolls back otherwise. Nested calls reuse
	// the outer transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error

	GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error)
	ListCategories(ctx context.Context) ([]*models.Category, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// LockJob serialises status recomputation for a job within a transaction.
	LockJob(ctx context.Context, id uuid.UUID) error
	UpdateJob(ctx context.Context, job *models.Job) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error
	JobHumanIDExists(ctx context.Context, humanID string) (bool, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error)
	ClientNames(ctx context.Context, prefix string, limit int) ([]string, error)

	CreateTask(ctx context.Context, task *models.Task) error
	// GetTask returns the task with its messages and history attached.
	GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error)
	// UpdateTask writes the mutable fields of task if the stored version still
	// equals readVersion, and sets task.Version to the new version.
	UpdateTask(ctx context.Context, task *models.Task, readVersion int) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	// ListTasks returns tasks without history; messages are attached.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	JobIDsWithTaskStatus(ctx context.Context, statuses []models.TaskStatus) ([]uuid.UUID, error)

	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, taskID uuid.UUID) ([]models.HistoryEntry, error)
	AppendVoiceMessage(ctx context.Context, taskID uuid.UUID, msg *models.VoiceMessage) error
	AppendTextMessage(ctx context.Context, taskID uuid.UUID, msg *models.TextMessage) error
}

// JobFilter narrows ListJobs. Zero values mean "no restriction"; a non-nil
// empty IDs slice matches nothing.
type JobFilter struct {
	CreatedBy  *uuid.UUID
	CategoryID *uuid.UUID
	IDs        []uuid.UUID
}

// TaskFilter narrows ListTasks. A non-nil empty Statuses slice matches nothing.
type TaskFilter struct {
	JobID      *uuid.UUID
	CategoryID *uuid.UUID
	Statuses   []models.TaskStatus
}
