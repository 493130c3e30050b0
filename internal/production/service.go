// Package production manages jobs and their tasks as they move through the
// workshop's production stages.
package production

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/cache"
	"github.com/shopfloor/shopfloor/internal/metrics"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
)

const (
	jobStatusTTL     = 10 * time.Minute
	suggestionsTTL   = 60 * time.Second
	suggestionsLimit = 10
)

// Config holds the service's tunables.
type Config struct {
	// Folder is the root folder attachments are uploaded under.
	Folder           string
	UploadTimeout    time.Duration
	JobIDMaxAttempts int
}

// Service implements job and task operations on behalf of an authenticated caller.
type Service struct {
	store   store.Store
	files   attachment.Store
	access  *access.Filter
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config

	now   func() time.Time
	intn  func(n int) int
	newID func() uuid.UUID
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables the Redis-backed job status and suggestion caches.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom overrides the source used for job identifier candidates.
// intn must return a value in [0, n).
func WithRandom(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

// New creates a Service.
func New(st store.Store, files attachment.Store, filter *access.Filter, cfg Config, opts ...Option) *Service {
	if cfg.JobIDMaxAttempts < 1 {
		cfg.JobIDMaxAttempts = 10
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.Folder == "" {
		cfg.Folder = "factory/tasks"
	}
	s := &Service{
		store:  st,
		files:  files,
		access: filter,
		cfg:    cfg,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		intn:   rand.IntN,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListCategories returns every category.
func (s *Service) ListCategories(ctx context.Context) ([]*models.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *Service) requireCategory(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.store.GetCategory(ctx, *id); err != nil {
		return translate(err, "category "+id.String())
	}
	return nil
}
