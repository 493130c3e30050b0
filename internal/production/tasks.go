package production

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// NewTask describes a task to create.
type NewTask struct {
	JobID       uuid.UUID
	Title       string
	Description string
	Color       string
	Size        string
	Quantity    int
	// Status defaults to pending when empty.
	Status      string
	CategoryID  *uuid.UUID
	Attachments []attachment.Blob
}

// TaskPatch carries an update. Nil fields keep their current value.
type TaskPatch struct {
	Title       *string
	Description *string
	Color       *string
	Size        *string
	Quantity    *int
	Status      *string
	CategoryID  *uuid.UUID
	// Attachments are uploaded and appended to the task's lists.
	Attachments []attachment.Blob
	// ExpectedVersion, when set, must match the stored version.
	ExpectedVersion *int
}

func parseStatus(s string) (models.TaskStatus, error) {
	st, err := models.ParseTaskStatus(s)
	if err != nil {
		return "", invalid("%v", err)
	}
	return st, nil
}

// CreateTask adds a task to an existing job and recomputes the job's status.
// Attachments are uploaded first; if any upload fails nothing is persisted.
func (s *Service) CreateTask(ctx context.Context, ident models.Identity, in NewTask) (*models.Task, error) {
	if err := access.RequireAdmin(ident); err != nil {
		return nil, err
	}
	status, err := parseStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if in.Quantity < 0 {
		return nil, invalid("quantity must not be negative")
	}
	kinds, err := classifyAll(in.Attachments)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetJob(ctx, in.JobID); err != nil {
		return nil, translate(err, "job "+in.JobID.String())
	}
	if err := s.requireCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	up, err := s.uploadAll(ctx, ident.ID, in.Attachments, kinds)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := &models.Task{
		ID:            s.newID(),
		JobID:         in.JobID,
		CategoryID:    in.CategoryID,
		Title:         in.Title,
		Description:   in.Description,
		Color:         in.Color,
		Size:          in.Size,
		Quantity:      in.Quantity,
		Status:        status,
		Images:        nonNil(up.images),
		Documents:     nonNil(up.documents),
		VoiceMessages: up.voice,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var jobStatus string
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := tx.CreateTask(ctx, task); err != nil {
			return translate(err, "job "+in.JobID.String())
		}
		jobStatus, err = s.recomputeStatus(ctx, tx, in.JobID)
		return err
	})
	if err != nil {
		s.discard(ctx, up.urls)
		return nil, fmt.Errorf("creating task: %w", err)
	}

	s.metrics.RecordTaskCreated()
	s.cacheJobStatus(ctx, in.JobID, jobStatus)
	return s.reload(ctx, task.ID)
}

// UpdateTask applies patch after recording the task's previous state in its
// history, then recomputes the parent job's status.
func (s *Service) UpdateTask(ctx context.Context, ident models.Identity, taskID uuid.UUID, patch TaskPatch) (*models.Task, error) {
	var status models.TaskStatus
	if patch.Status != nil {
		var err error
		if status, err = parseStatus(*patch.Status); err != nil {
			return nil, err
		}
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return nil, invalid("quantity must not be negative")
	}
	kinds, err := classifyAll(patch.Attachments)
	if err != nil {
		return nil, err
	}

	current, err := s.GetTask(ctx, ident, taskID)
	if err != nil {
		return nil, err
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != current.Version {
		return nil, fmt.Errorf("%w: task %s is at version %d", ErrConflict, taskID, current.Version)
	}
	if err := s.requireCategory(ctx, patch.CategoryID); err != nil {
		return nil, err
	}

	up, err := s.uploadAll(ctx, ident.ID, patch.Attachments, kinds)
	if err != nil {
		return nil, err
	}

	var (
		jobID     uuid.UUID
		jobStatus string
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return translate(err, "task "+taskID.String())
		}
		if err := s.access.CanSeeTask(ident, task); err != nil {
			return err
		}
		// Writes are based on the version the caller was checked against;
		// any change since then fails the compare-and-swap.
		readVersion := current.Version
		if task.Version != readVersion {
			return fmt.Errorf("%w: task %s is at version %d", ErrConflict, taskID, task.Version)
		}

		if err := s.recordHistory(ctx, tx, task, ident.ID); err != nil {
			return err
		}

		applyPatch(task, patch, status)
		task.Images = append(task.Images, up.images...)
		task.Documents = append(task.Documents, up.documents...)
		task.UpdatedAt = s.now()
		if err := tx.UpdateTask(ctx, task, readVersion); err != nil {
			return translate(err, "task "+taskID.String())
		}
		for i := range up.voice {
			if err := tx.AppendVoiceMessage(ctx, taskID, &up.voice[i]); err != nil {
				return translate(err, "task "+taskID.String())
			}
		}

		jobID = task.JobID
		jobStatus, err = s.recomputeStatus(ctx, tx, task.JobID)
		return err
	})
	if err != nil {
		s.discard(ctx, up.urls)
		return nil, fmt.Errorf("updating task: %w", err)
	}

	updated, err := s.reload(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTaskUpdate(string(updated.Status))
	s.cacheJobStatus(ctx, jobID, jobStatus)
	return updated, nil
}

func applyPatch(t *models.Task, p TaskPatch, status models.TaskStatus) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Color != nil {
		t.Color = *p.Color
	}
	if p.Size != nil {
		t.Size = *p.Size
	}
	if p.Quantity != nil {
		t.Quantity = *p.Quantity
	}
	if p.Status != nil {
		t.Status = status
	}
	if p.CategoryID != nil {
		id := *p.CategoryID
		t.CategoryID = &id
	}
}

// DeleteTask removes a task, recomputes its job's status and then deletes the
// task's stored files.
func (s *Service) DeleteTask(ctx context.Context, ident models.Identity, taskID uuid.UUID) error {
	if err := access.RequireAdmin(ident); err != nil {
		return err
	}

	var (
		deleted   *models.Task
		jobStatus string
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return translate(err, "task "+taskID.String())
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return translate(err, "task "+taskID.String())
		}
		deleted = task
		jobStatus, err = s.recomputeStatus(ctx, tx, task.JobID)
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}

	s.cacheJobStatus(ctx, deleted.JobID, jobStatus)
	s.discard(ctx, taskURLs(deleted))
	return nil
}

// GetTask returns a task with its messages and history.
func (s *Service) GetTask(ctx context.Context, ident models.Identity, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err, "task "+taskID.String())
	}
	if err := s.access.CanSeeTask(ident, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns every task the caller may see.
func (s *Service) ListTasks(ctx context.Context, ident models.Identity) ([]*models.Task, error) {
	return s.access.VisibleAllTasks(ctx, ident)
}

// TasksByJob returns the caller's visible tasks of one job.
func (s *Service) TasksByJob(ctx context.Context, ident models.Identity, jobID uuid.UUID) ([]*models.Task, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, translate(err, "job "+jobID.String())
	}
	return s.access.VisibleTasks(ctx, ident, jobID)
}

// TasksByCategory returns the caller's visible tasks in one category.
func (s *Service) TasksByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Task, error) {
	if err := s.requireCategory(ctx, &categoryID); err != nil {
		return nil, err
	}
	return s.access.VisibleTasksByCategory(ctx, ident, categoryID)
}

func (s *Service) reload(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err, "task "+taskID.String())
	}
	return task, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
