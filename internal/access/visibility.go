package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// Reader is the slice of the store the filter reads from.
type Reader interface {
	ListJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*models.Task, error)
	JobIDsWithTaskStatus(ctx context.Context, statuses []models.TaskStatus) ([]uuid.UUID, error)
}

// Filter scopes job and task reads to what a caller's role may see.
type Filter struct {
	reader       Reader
	policy       Policy
	adminOwnJobs bool
}

// Option configures a Filter.
type Option func(*Filter)

// WithAdminOwnJobs limits admin-tier job listings to jobs the caller created.
func WithAdminOwnJobs(enabled bool) Option {
	return func(f *Filter) { f.adminOwnJobs = enabled }
}

// NewFilter creates a Filter enforcing policy.
func NewFilter(r Reader, policy Policy, opts ...Option) *Filter {
	f := &Filter{reader: r, policy: policy}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Policy returns the role mapping the filter enforces.
func (f *Filter) Policy() Policy { return f.policy }

// AdminOwnJobs reports whether admin-tier callers are limited to their own jobs.
func (f *Filter) AdminOwnJobs() bool { return f.adminOwnJobs }

// VisibleJobs returns the jobs ident may see.
func (f *Filter) VisibleJobs(ctx context.Context, ident models.Identity) ([]*models.Job, error) {
	return f.visibleJobs(ctx, ident, store.JobFilter{})
}

// VisibleJobsByCategory is VisibleJobs narrowed to one category.
func (f *Filter) VisibleJobsByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Job, error) {
	return f.visibleJobs(ctx, ident, store.JobFilter{CategoryID: &categoryID})
}

func (f *Filter) visibleJobs(ctx context.Context, ident models.Identity, filter store.JobFilter) ([]*models.Job, error) {
	if ident.Role.AdminTier() {
		if f.adminOwnJobs {
			filter.CreatedBy = &ident.ID
		}
		return f.listJobs(ctx, filter)
	}

	statuses, err := f.policy.AllowedStatuses(ident.Role)
	if err != nil {
		return nil, err
	}
	ids, err := f.reader.JobIDsWithTaskStatus(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("listing visible job ids: %w", err)
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	filter.IDs = ids
	return f.listJobs(ctx, filter)
}

// VisibleTasks returns the tasks of jobID that ident may see.
func (f *Filter) VisibleTasks(ctx context.Context, ident models.Identity, jobID uuid.UUID) ([]*models.Task, error) {
	return f.visibleTasks(ctx, ident, store.TaskFilter{JobID: &jobID})
}

// VisibleTasksByCategory returns the tasks in categoryID that ident may see.
func (f *Filter) VisibleTasksByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Task, error) {
	return f.visibleTasks(ctx, ident, store.TaskFilter{CategoryID: &categoryID})
}

// VisibleAllTasks returns every task ident may see.
func (f *Filter) VisibleAllTasks(ctx context.Context, ident models.Identity) ([]*models.Task, error) {
	return f.visibleTasks(ctx, ident, store.TaskFilter{})
}

func (f *Filter) visibleTasks(ctx context.Context, ident models.Identity, filter store.TaskFilter) ([]*models.Task, error) {
	if !ident.Role.AdminTier() {
		statuses, err := f.policy.AllowedStatuses(ident.Role)
		if err != nil {
			return nil, err
		}
		filter.Statuses = statuses
	}
	tasks, err := f.reader.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing visible tasks: %w", err)
	}
	return tasks, nil
}

// CanSeeTask fails with ErrForbidden unless ident may see task.
func (f *Filter) CanSeeTask(ident models.Identity, task *models.Task) error {
	if ident.Role.AdminTier() {
		return nil
	}
	if _, err := f.policy.AllowedStatuses(ident.Role); err != nil {
		return err
	}
	if !f.policy.Allows(ident.Role, task.Status) {
		return fmt.Errorf("%w: task is in stage %q", ErrForbidden, task.Status)
	}
	return nil
}

// CanSeeJob fails with ErrForbidden unless job is among ident's visible jobs.
func (f *Filter) CanSeeJob(ctx context.Context, ident models.Identity, job *models.Job) error {
	if ident.Role.AdminTier() {
		if f.adminOwnJobs && job.CreatedBy != ident.ID {
			return fmt.Errorf("%w: job belongs to another admin", ErrForbidden)
		}
		return nil
	}
	statuses, err := f.policy.AllowedStatuses(ident.Role)
	if err != nil {
		return err
	}
	tasks, err := f.reader.ListTasks(ctx, store.TaskFilter{JobID: &job.ID, Statuses: statuses})
	if err != nil {
		return fmt.Errorf("checking job visibility: %w", err)
	}
	if len(tasks) == 0 {
		return fmt.Errorf("%w: no visible tasks in job", ErrForbidden)
	}
	return nil
}

func (f *Filter) listJobs(ctx context.Context, filter store.JobFilter) ([]*models.Job, error) {
	jobs, err := f.reader.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing visible jobs: %w", err)
	}
	return jobs, nil
}
