package production

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

func snapshot(t *models.Task) models.TaskSnapshot {
	snap := models.TaskSnapshot{
		Title:       t.Title,
		Description: t.Description,
		Color:       t.Color,
		Size:        t.Size,
		Quantity:    t.Quantity,
		Status:      t.Status,
	}
	if t.CategoryID != nil {
		id := *t.CategoryID
		snap.CategoryID = &id
	}
	return snap
}

// recordHistory appends the task's current state, which must be read before
// any field is overwritten.
func (s *Service) recordHistory(ctx context.Context, tx store.Store, current *models.Task, by uuid.UUID) error {
	entry := &models.HistoryEntry{
		ID:            s.newID(),
		TaskID:        current.ID,
		UpdatedBy:     by,
		UpdatedAt:     s.now(),
		PreviousState: snapshot(current),
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("recording task history: %w", translate(err, "task "+current.ID.String()))
	}
	return nil
}

// TaskHistory returns the task's history, oldest first.
func (s *Service) TaskHistory(ctx context.Context, ident models.Identity, taskID uuid.UUID) ([]models.HistoryEntry, error) {
	task, err := s.GetTask(ctx, ident, taskID)
	if err != nil {
		return nil, err
	}
	return task.History, nil
}
