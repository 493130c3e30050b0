package production

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// AddVoiceMessage uploads an audio note and appends it to the task. The job
// status is unaffected.
func (s *Service) AddVoiceMessage(ctx context.Context, ident models.Identity, taskID uuid.UUID, blob *attachment.Blob) (*models.Task, error) {
	if blob == nil {
		return nil, invalid("voice message file is required")
	}
	kinds, err := classifyAll([]attachment.Blob{*blob})
	if err != nil {
		return nil, err
	}
	if kinds[0] != attachment.KindVoice {
		return nil, invalid("voice message must be audio, got %q", blob.ContentType)
	}
	if _, err := s.GetTask(ctx, ident, taskID); err != nil {
		return nil, err
	}

	up, err := s.uploadAll(ctx, ident.ID, []attachment.Blob{*blob}, kinds)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendVoiceMessage(ctx, taskID, &up.voice[0]); err != nil {
		s.discard(ctx, up.urls)
		return nil, translate(err, "task "+taskID.String())
	}
	return s.reload(ctx, taskID)
}

// AddTextMessage appends a note to the task. Blank text is rejected.
func (s *Service) AddTextMessage(ctx context.Context, ident models.Identity, taskID uuid.UUID, text string) (*models.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text is required")
	}
	if _, err := s.GetTask(ctx, ident, taskID); err != nil {
		return nil, err
	}

	msg := &models.TextMessage{
		ID:        s.newID(),
		AuthorID:  ident.ID,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendTextMessage(ctx, taskID, msg); err != nil {
		return nil, translate(err, "task "+taskID.String())
	}
	return s.reload(ctx, taskID)
}
