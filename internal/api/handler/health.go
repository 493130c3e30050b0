package handler

import (
	"context"
	"net/http"

	"github.com/shopfloor/shopfloor/internal/api/response"
)

// Pinger is a dependency whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerState reports the attachment store circuit breaker's state.
type BreakerState interface {
	State() string
}

// NewHealthHandler checks database and cache connectivity. An open
// attachment breaker is reported but does not fail the check.
func NewHealthHandler(db, cache Pinger, files BreakerState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if files != nil {
			checks["attachments"] = files.State()
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
