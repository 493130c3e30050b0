package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/shopfloor/shopfloor/internal/api/middleware"
	"github.com/shopfloor/shopfloor/internal/api/response"
	"github.com/shopfloor/shopfloor/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit
	Metrics   *metrics.Metrics

	HealthHandler  http.HandlerFunc
	MetricsHandler http.Handler

	CreateJob       http.HandlerFunc
	ListJobs        http.HandlerFunc
	JobSuggestions  http.HandlerFunc
	JobsByCategory  http.HandlerFunc
	GetJob          http.HandlerFunc
	JobStatus       http.HandlerFunc
	UpdateJob       http.HandlerFunc
	CreateTask      http.HandlerFunc
	ListTasks       http.HandlerFunc
	TasksByJob      http.HandlerFunc
	TasksByCategory http.HandlerFunc
	GetTask         http.HandlerFunc
	TaskHistory     http.HandlerFunc
	UpdateTask      http.HandlerFunc
	DeleteTask      http.HandlerFunc
	AddVoiceMessage http.HandlerFunc
	AddTextMessage  http.HandlerFunc
	ListCategories  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.Metrics != nil {
		r.Use(mw.Metrics(deps.Metrics))
	}

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/jobs", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateJob))
			r.Get("/", orNotImplemented(deps.ListJobs))
			r.Get("/suggestions", orNotImplemented(deps.JobSuggestions))
			r.Get("/category/{categoryID}", orNotImplemented(deps.JobsByCategory))
			r.Get("/{jobID}", orNotImplemented(deps.GetJob))
			r.Get("/{jobID}/status", orNotImplemented(deps.JobStatus))
			r.Put("/{jobID}", orNotImplemented(deps.UpdateJob))
		})

		r.Route("/api/v1/tasks", func(r chi.Router) {
			r.Post("/", orNotImplemented(deps.CreateTask))
			r.Get("/", orNotImplemented(deps.ListTasks))
			r.Get("/job/{jobID}", orNotImplemented(deps.TasksByJob))
			r.Get("/category/{categoryID}", orNotImplemented(deps.TasksByCategory))
			r.Get("/{taskID}", orNotImplemented(deps.GetTask))
			r.Get("/{taskID}/history", orNotImplemented(deps.TaskHistory))
			r.Put("/{taskID}", orNotImplemented(deps.UpdateTask))
			r.Delete("/{taskID}", orNotImplemented(deps.DeleteTask))
			r.Post("/{taskID}/voice", orNotImplemented(deps.AddVoiceMessage))
			r.Post("/{taskID}/text", orNotImplemented(deps.AddTextMessage))
		})

		r.Get("/api/v1/categories", orNotImplemented(deps.ListCategories))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
