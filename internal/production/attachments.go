package production

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/pkg/models"
	"golang.org/x/sync/errgroup"
)

const cleanupTimeout = 30 * time.Second

// uploads is the outcome of one all-or-nothing upload batch, in input order
// within each kind.
type uploads struct {
	images    []string
	documents []string
	voice     []models.VoiceMessage
	urls      []string
}

func classifyAll(blobs []attachment.Blob) ([]attachment.Kind, error) {
	kinds := make([]attachment.Kind, len(blobs))
	for i, b := range blobs {
		if len(b.Data) == 0 {
			return nil, invalid("attachment %q is empty", b.Filename)
		}
		kind, err := attachment.Classify(b.ContentType)
		if err != nil {
			return nil, invalid("attachment %q: %v", b.Filename, err)
		}
		kinds[i] = kind
	}
	return kinds, nil
}

// uploadAll stores every blob concurrently under the upload timeout. If any
// upload fails the ones that succeeded are deleted and nothing is returned.
// Audio blobs become voice messages authored by author.
func (s *Service) uploadAll(ctx context.Context, author uuid.UUID, blobs []attachment.Blob, kinds []attachment.Kind) (*uploads, error) {
	out := &uploads{}
	if len(blobs) == 0 {
		return out, nil
	}

	uctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	urls := make([]string, len(blobs))
	g, gctx := errgroup.WithContext(uctx)
	for i, blob := range blobs {
		g.Go(func() error {
			url, err := s.files.Store(gctx, blob, attachment.Folder(s.cfg.Folder, kinds[i]))
			if err != nil {
				s.metrics.RecordUpload(string(kinds[i]), "failure")
				return fmt.Errorf("uploading %q: %w", blob.Filename, err)
			}
			s.metrics.RecordUpload(string(kinds[i]), "success")
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, urls)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	now := s.now()
	for i, url := range urls {
		switch kinds[i] {
		case attachment.KindImage:
			out.images = append(out.images, url)
		case attachment.KindDocument:
			out.documents = append(out.documents, url)
		case attachment.KindVoice:
			out.voice = append(out.voice, models.VoiceMessage{ID: s.newID(), AuthorID: author, URL: url, CreatedAt: now})
		}
	}
	out.urls = urls
	return out, nil
}

// discard deletes stored blobs. It outlives ctx's cancellation and only logs
// failures.
func (s *Service) discard(ctx context.Context, urls []string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, url := range urls {
		if url == "" {
			continue
		}
		if err := s.files.Delete(cctx, url); err != nil {
			s.logger.Warn("deleting attachment failed", "url", url, "error", err)
		}
	}
}

func taskURLs(t *models.Task) []string {
	urls := make([]string, 0, len(t.Images)+len(t.Documents)+len(t.VoiceMessages))
	urls = append(urls, t.Images...)
	urls = append(urls, t.Documents...)
	for _, v := range t.VoiceMessages {
		urls = append(urls, v.URL)
	}
	return urls
}
