// Package handler implements the HTTP handlers of the shopfloor API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/api/middleware"
	"github.com/shopfloor/shopfloor/internal/api/response"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/production"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// JobService is the job half of production.Service.
type JobService interface {
	CreateJob(ctx context.Context, ident models.Identity, clientName string, categoryID *uuid.UUID) (*models.Job, error)
	UpdateJob(ctx context.Context, ident models.Identity, jobID uuid.UUID, clientName *string, categoryID *uuid.UUID) (*models.Job, error)
	GetJob(ctx context.Context, ident models.Identity, jobID uuid.UUID) (*models.Job, error)
	JobStatus(ctx context.Context, ident models.Identity, jobID uuid.UUID) (string, error)
	ListJobs(ctx context.Context, ident models.Identity) ([]*models.Job, error)
	JobsByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Job, error)
	ClientSuggestions(ctx context.Context, ident models.Identity, prefix string) ([]string, error)
}

// TaskService is the task half of production.Service.
type TaskService interface {
	CreateTask(ctx context.Context, ident models.Identity, in production.NewTask) (*models.Task, error)
	UpdateTask(ctx context.Context, ident models.Identity, taskID uuid.UUID, patch production.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, ident models.Identity, taskID uuid.UUID) error
	GetTask(ctx context.Context, ident models.Identity, taskID uuid.UUID) (*models.Task, error)
	ListTasks(ctx context.Context, ident models.Identity) ([]*models.Task, error)
	TasksByJob(ctx context.Context, ident models.Identity, jobID uuid.UUID) ([]*models.Task, error)
	TasksByCategory(ctx context.Context, ident models.Identity, categoryID uuid.UUID) ([]*models.Task, error)
	TaskHistory(ctx context.Context, ident models.Identity, taskID uuid.UUID) ([]models.HistoryEntry, error)
}

// MessageService appends notes to tasks.
type MessageService interface {
	AddVoiceMessage(ctx context.Context, ident models.Identity, taskID uuid.UUID, blob *attachment.Blob) (*models.Task, error)
	AddTextMessage(ctx context.Context, ident models.Identity, taskID uuid.UUID, text string) (*models.Task, error)
}

// CategoryLister reads the category catalogue.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]*models.Category, error)
}

// caller returns the authenticated identity or writes a 401.
func caller(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	ident, ok := middleware.GetIdentity(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing identity", nil)
	}
	return ident, ok
}

// pathUUID parses a chi URL parameter or writes a 400.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// maxJSONBytes caps non-multipart request bodies.
const maxJSONBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	return true
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, production.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, production.ErrForbidden):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.Is(err, production.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, production.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, production.ErrIDGenerationExhausted):
		response.Error(w, http.StatusServiceUnavailable, "ID_GENERATION_EXHAUSTED",
			"Could not allocate a job identifier, retry later", nil)
	case errors.Is(err, production.ErrUpstream):
		slog.Warn("attachment store failure", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusBadGateway, "UPSTREAM_FAILURE",
			"The attachment store is not available", nil)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
