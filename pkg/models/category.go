package models

import (
	"time"

	"github.com/google/uuid"
)

// Category groups jobs and tasks by product line. Read-only here.
type Category struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
