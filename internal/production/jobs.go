package production

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// CreateJob opens a new pending job with no tasks. Only admin-tier callers
// may create jobs.
func (s *Service) CreateJob(ctx context.Context, ident models.Identity, clientName string, categoryID *uuid.UUID) (*models.Job, error) {
	if err := access.RequireAdmin(ident); err != nil {
		return nil, err
	}
	clientName = strings.TrimSpace(clientName)
	if clientName == "" {
		return nil, invalid("clientName is required")
	}
	if err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	now := s.now()
	job := &models.Job{
		ID:         s.newID(),
		ClientName: clientName,
		CategoryID: categoryID,
		TaskIDs:    []uuid.UUID{},
		Status:     models.JobStatusPending,
		CreatedBy:  ident.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// A duplicate on insert means another job took the identifier after
	// the existence check; it costs one attempt like any other collision.
	budget := s.cfg.JobIDMaxAttempts
	for {
		humanID, err := s.generateJobIdentifier(ctx, &budget)
		if err != nil {
			return nil, err
		}
		job.HumanID = humanID
		err = s.store.CreateJob(ctx, job)
		if errors.Is(err, store.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating job: %w", translate(err, "job"))
		}
		break
	}

	s.cacheJobStatus(ctx, job.ID, job.Status)
	return job, nil
}

// UpdateJob replaces the job's client name and category. Both are required.
func (s *Service) UpdateJob(ctx context.Context, ident models.Identity, jobID uuid.UUID, clientName *string, categoryID *uuid.UUID) (*models.Job, error) {
	if err := access.RequireAdmin(ident); err != nil {
		return nil, err
	}
	if clientName == nil || strings.TrimSpace(*clientName) == "" {
		return nil, invalid("clientName is required")
	}
	if categoryID == nil {
		return nil, invalid("category is required")
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, translate(err, "job "+jobID.String())
	}
	if err := s.access.CanSeeJob(ctx, ident, job); err != nil {
		return nil, err
	}
	if err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	job.ClientName = strings.TrimSpace(*clientName)
	job.CategoryID = categoryID
	job.UpdatedAt = s.now()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, translate(err, "job "+jobID.String())
	}
	return job, nil
}

// GetJob returns a job the caller may see.
func (s *Service) GetJob(ctx context.Context, ident models.Identity, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, translate(err, "job "+jobID.String())
	}
	if err := s.access.CanSeeJob(ctx, ident, job); err != nil {
		return nil, err
	}
	return job, nil
}

// JobStatus returns the job's derived status, from cache when possible.
func (s *Service) JobStatus(ctx context.Context, ident models.Identity, jobID uuid.UUID) (string, error) {
	// Visibility of a worker or scoped admin depends on the job row, so only
	// unscoped admins can be answered from cache alone.
	if !ident.Role.AdminTier() || s.access.AdminOwnJobs() {
		job, err := s.GetJob(ctx, ident, jobID)
		if err != nil {
			return "", err
		}
		return job.Status, nil
	}

	if s.cache != nil {
		status, found, err := s.cache.GetJobStatus(ctx, jobID)
		if err != nil {
			s.logger.Warn("reading cached job status failed", "job_id", jobID, "error", err)
		}
		if found {
			return status, nil
		}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return "", translate(err, "job "+jobID.String())
	}
	s.cacheJobStatus(ctx, jobID, job.Status)
	return job.Status, nil
}

// ListJobs returns the jobs visible to the caller.
func (s *Service) ListJobs(ctx context.Context, ident models.Identity) ([]*models.Job, error) {
	return s.access.VisibleJobs(ctx, ident)
}

// JobsByCategory returns the caller's visible jobs in one category.
func (s *Service) JobsByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Job, error) {
	if err := s.requireCategory(ctx, &categoryID); err != nil {
		return nil, err
	}
	return s.access.VisibleJobsByCategory(ctx, ident, categoryID)
}

// ClientSuggestions returns up to ten distinct client names starting with
// prefix, most recently used first.
func (s *Service) ClientSuggestions(ctx context.Context, ident models.Identity, prefix string) ([]string, error) {
	if err := access.RequireAdmin(ident); err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)

	if s.cache != nil {
		names, found, err := s.cache.GetClientSuggestions(ctx, prefix)
		if err != nil {
			s.logger.Warn("reading cached client suggestions failed", "prefix", prefix, "error", err)
		}
		if found {
			return names, nil
		}
	}

	names, err := s.store.ClientNames(ctx, prefix, suggestionsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing client names: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.SetClientSuggestions(ctx, prefix, names, suggestionsTTL); err != nil {
			s.logger.Warn("caching client suggestions failed", "prefix", prefix, "error", err)
		}
	}
	return names, nil
}
