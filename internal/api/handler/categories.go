package handler

import (
	"net/http"

	"github.com/shopfloor/shopfloor/internal/api/response"
)

// NewListCategoriesHandler returns an http.HandlerFunc for GET /api/v1/categories.
func NewListCategoriesHandler(svc CategoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := caller(w, r); !ok {
			return
		}
		categories, err := svc.ListCategories(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, categories)
	}
}
