package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/api/response"
)

type jobRequest struct {
	ClientName *string    `json:"client_name"`
	CategoryID *uuid.UUID `json:"category_id"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		var req jobRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		var name string
		if req.ClientName != nil {
			name = *req.ClientName
		}

		job, err := svc.CreateJob(r.Context(), ident, name, req.CategoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Created(w, job)
	}
}

// NewUpdateJobHandler returns an http.HandlerFunc for PUT /api/v1/jobs/{jobID}.
func NewUpdateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		jobID, ok := pathUUID(w, r, "jobID")
		if !ok {
			return
		}
		var req jobRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		job, err := svc.UpdateJob(r.Context(), ident, jobID, req.ClientName, req.CategoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		jobID, ok := pathUUID(w, r, "jobID")
		if !ok {
			return
		}
		job, err := svc.GetJob(r.Context(), ident, jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/status.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		jobID, ok := pathUUID(w, r, "jobID")
		if !ok {
			return
		}
		status, err := svc.JobStatus(r.Context(), ident, jobID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"job_id": jobID, "status": status})
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		jobs, err := svc.ListJobs(r.Context(), ident)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewJobsByCategoryHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/category/{categoryID}.
func NewJobsByCategoryHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		categoryID, ok := pathUUID(w, r, "categoryID")
		if !ok {
			return
		}
		jobs, err := svc.JobsByCategory(r.Context(), ident, categoryID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewJobSuggestionsHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/suggestions?q=.
func NewJobSuggestionsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := caller(w, r)
		if !ok {
			return
		}
		names, err := svc.ClientSuggestions(r.Context(), ident, r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, names)
	}
}
