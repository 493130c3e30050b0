package production

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// DeriveJobStatus is completed iff there is at least one task and every task
// is completed.
func DeriveJobStatus(tasks []*models.Task) string {
	if len(tasks) == 0 {
		return models.JobStatusPending
	}
	for _, t := range tasks {
		if !t.Status.Terminal() {
			return models.JobStatusPending
		}
	}
	return models.JobStatusCompleted
}

// RecomputeStatus derives the job's status from its tasks and persists it.
func (s *Service) RecomputeStatus(ctx context.Context, jobID uuid.UUID) (string, error) {
	var status string
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		var err error
		status, err = s.recomputeStatus(ctx, tx, jobID)
		return err
	})
	if err != nil {
		return "", err
	}
	s.cacheJobStatus(ctx, jobID, status)
	return status, nil
}

// recomputeStatus runs inside tx after the triggering task mutation. The job
// row lock serialises concurrent recomputations of the same job.
func (s *Service) recomputeStatus(ctx context.Context, tx store.Store, jobID uuid.UUID) (string, error) {
	if err := tx.LockJob(ctx, jobID); err != nil {
		return "", translate(err, "job "+jobID.String())
	}
	job, err := tx.GetJob(ctx, jobID)
	if err != nil {
		return "", translate(err, "job "+jobID.String())
	}
	tasks, err := tx.ListTasks(ctx, store.TaskFilter{JobID: &jobID})
	if err != nil {
		return "", fmt.Errorf("listing job tasks: %w", err)
	}

	status := DeriveJobStatus(tasks)
	if status != job.Status {
		if err := tx.UpdateJobStatus(ctx, jobID, status); err != nil {
			return "", translate(err, "job "+jobID.String())
		}
	}
	s.metrics.RecordJobStatus(status)
	return status, nil
}

func (s *Service) cacheJobStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		s.logger.Warn("caching job status failed", "job_id", jobID, "error", err)
	}
}
