package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/api/response"
	"github.com/shopfloor/shopfloor/internal/production"
)

var errJobIDRequired = errors.New("job_id is required")

type createTaskRequest struct {
	JobID       uuid.UUID  `json:"job_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Size        string     `json:"size"`
	Quantity    int        `json:"quantity"`
	Status      string     `json:"status"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

type updateTaskRequest struct {
	Title           *string    `json:"title"`
	Description     *string    `json:"description"`
	Color           *string    `json:"color"`
	Size            *string    `json:"size"`
	Quantity        *int       `json:"quantity"`
	Status          *string    `json:"status"`
	CategoryID      *uuid.UUID `json:"category_id"`
	ExpectedVersion *int       `json:"expected_version"`
}

// NewCreateTaskHandler returns an http.HandlerFunc for POST /api/v1/tasks.
// It accepts a JSON body, or a multipart form whose "files" parts become
// attachments.
func NewCreateTaskHandler(svc TaskService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}

		var in production.NewTask
		if isMultipart(r) {
			if !parseMultipart(w, r, maxUploadBytes) {
				return
			}
			f := &formFields{form: r.MultipartForm}
			jobID := f.id("job_id")
			in = production.NewTask{
				Title:       deref(f.text("title")),
				Description: deref(f.text("description")),
				Color:       deref(f.text("color")),
				Size:        deref(f.text("size")),
				Quantity:    deref(f.number("quantity")),
				Status:      deref(f.text("status")),
				CategoryID:  f.id("category_id"),
			}
			if f.err == nil && jobID == nil {
				f.fail(errJobIDRequired)
			}
			if f.err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", f.err.Error(), nil)
				return
			}
			in.JobID = *jobID
			blobs, err := readBlobs(r.MultipartForm, "files")
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			in.Attachments = blobs
		} else {
			var req createTaskRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			if req.JobID == uuid.Nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", errJobIDRequired.Error(), nil)
				return
			}
			in = production.NewTask{
				JobID:       req.JobID,
				Title:       req.Title,
				Description: req.Description,
				Color:       req.Color,
				Size:        req.Size,
				Quantity:    req.Quantity,
				Status:      req.Status,
				CategoryID:  req.CategoryID,
			}
		}

		task, err := svc.CreateTask(r.Context(), ident, in)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, task)
	}
}

// NewUpdateTaskHandler returns an http.HandlerFunc for PUT /api/v1/tasks/{taskID}.
// Omitted fields keep their current value.
func NewUpdateTaskHandler(svc TaskService, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}

		var patch production.TaskPatch
		if isMultipart(r) {
			if !parseMultipart(w, r, maxUploadBytes) {
				return
			}
			f := &formFields{form: r.MultipartForm}
			patch = production.TaskPatch{
				Title:           f.text("title"),
				Description:     f.text("description"),
				Color:           f.text("color"),
				Size:            f.text("size"),
				Quantity:        f.number("quantity"),
				Status:          f.text("status"),
				CategoryID:      f.id("category_id"),
				ExpectedVersion: f.number("expected_version"),
			}
			if f.err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", f.err.Error(), nil)
				return
			}
			blobs, err := readBlobs(r.MultipartForm, "files")
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			patch.Attachments = blobs
		} else {
			var req updateTaskRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			patch = production.TaskPatch{
				Title:           req.Title,
				Description:     req.Description,
				Color:           req.Color,
				Size:            req.Size,
				Quantity:        req.Quantity,
				Status:          req.Status,
				CategoryID:      req.CategoryID,
				ExpectedVersion: req.ExpectedVersion,
			}
		}

		task, err := svc.UpdateTask(r.Context(), ident, taskID, patch)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, task)
	}
}

// NewDeleteTaskHandler returns an http.HandlerFunc for DELETE /api/v1/tasks/{taskID}.
func NewDeleteTaskHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}
		if err := svc.DeleteTask(r.Context(), ident, taskID); err != nil {
			writeError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

// NewGetTaskHandler returns an http.HandlerFunc for GET /api/v1/tasks/{taskID}.
func NewGetTaskHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}
		task, err := svc.GetTask(r.Context(), ident, taskID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, task)
	}
}

// NewTaskHistoryHandler returns an http.HandlerFunc for
// GET /api/v1/tasks/{taskID}/history.
func NewTaskHistoryHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		taskID, ok := pathUUID(w, r, "taskID")
		if !ok {
			return
		}
		history, err := svc.TaskHistory(r.Context(), ident, taskID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, history)
	}
}

// NewListTasksHandler returns an http.HandlerFunc for GET /api/v1/tasks.
func NewListTasksHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		tasks, err := svc.ListTasks(r.Context(), ident)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tasks)
	}
}

// NewTasksByJobHandler returns an http.HandlerFunc for GET /api/v1/tasks/job/{jobID}.
func NewTasksByJobHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		jobID, ok := pathUUID(w, r, "jobID")
		if !ok {
			return
		}
		tasks, err := svc.TasksByJob(r.Context(), ident, jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tasks)
	}
}

// NewTasksByCategoryHandler returns an http.HandlerFunc for
// GET /api/v1/tasks/category/{categoryID}.
func NewTasksByCategoryHandler(svc TaskService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		categoryID, ok := pathUUID(w, r, "categoryID")
		if !ok {
			return
		}
		tasks, err := svc.TasksByCategory(r.Context(), ident, categoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, tasks)
	}
}
