package production_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/attachment/mock"
	"github.com/shopfloor/shopfloor/internal/production"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
	"github.com/stretchr/testify/require"
)

// --- mock cache ---

type mockCache struct {
	mu          sync.Mutex
	statuses    map[uuid.UUID]string
	suggestions map[string][]string
}

func newMockCache() *mockCache {
	return &mockCache{
		statuses:    make(map[uuid.UUID]string),
		suggestions: make(map[string][]string),
	}
}

func (c *mockCache) Ping(_ context.Context) error { return nil }

func (c *mockCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *mockCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *mockCache) SetClientSuggestions(_ context.Context, prefix string, names []string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestions[strings.ToLower(prefix)] = names
	return nil
}

func (c *mockCache) GetClientSuggestions(_ context.Context, prefix string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.suggestions[strings.ToLower(prefix)]
	return n, ok, nil
}

func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (c *mockCache) status(jobID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[jobID]
}

// --- test environment ---

type testEnv struct {
	svc      *production.Service
	store    *store.MemoryStore
	files    *mock.MockStore
	cache    *mockCache
	admin    models.Identity
	cutter   models.Identity
	member   models.Identity
	category uuid.UUID
}

type envOptions struct {
	files        *mock.MockStore
	wrap         func(*store.MemoryStore) store.Store
	adminOwnJobs bool
	opts         []production.Option
	cfg          production.Config
}

type envOption func(*envOptions)

func withFiles(f *mock.MockStore) envOption { return func(o *envOptions) { o.files = f } }

// withStore wraps the memory store, e.g. to inject failures.
func withStore(wrap func(*store.MemoryStore) store.Store) envOption {
	return func(o *envOptions) { o.wrap = wrap }
}

func withAdminOwnJobs() envOption { return func(o *envOptions) { o.adminOwnJobs = true } }

func withServiceOption(opt production.Option) envOption {
	return func(o *envOptions) { o.opts = append(o.opts, opt) }
}

func withConfig(cfg production.Config) envOption { return func(o *envOptions) { o.cfg = cfg } }

func newTestEnv(t *testing.T, options ...envOption) *testEnv {
	t.Helper()
	mem := store.NewMemoryStore()
	o := &envOptions{
		files: mock.NewMockStore(),
		cfg:   production.Config{Folder: "factory/tasks", UploadTimeout: time.Second, JobIDMaxAttempts: 10},
	}
	for _, opt := range options {
		opt(o)
	}
	var st store.Store = mem
	if o.wrap != nil {
		st = o.wrap(mem)
	}

	env := &testEnv{
		store:    mem,
		files:    o.files,
		cache:    newMockCache(),
		admin:    models.Identity{ID: uuid.New(), Role: models.RoleAdmin, Name: "Ada"},
		cutter:   models.Identity{ID: uuid.New(), Role: models.RoleCutter, Name: "Cy"},
		member:   models.Identity{ID: uuid.New(), Role: models.RoleMember, Name: "Mo"},
		category: uuid.New(),
	}
	mem.PutCategory(&models.Category{ID: env.category, Name: "bags"})

	filter := access.NewFilter(st, access.DefaultPolicy(), access.WithAdminOwnJobs(o.adminOwnJobs))
	opts := append([]production.Option{production.WithCache(env.cache)}, o.opts...)
	env.svc = production.New(st, env.files, filter, o.cfg, opts...)
	return env
}

func (e *testEnv) job(t *testing.T) *models.Job {
	t.Helper()
	job, err := e.svc.CreateJob(context.Background(), e.admin, "Acme", &e.category)
	require.NoError(t, err)
	return job
}

func (e *testEnv) task(t *testing.T, jobID uuid.UUID, title string, status models.TaskStatus) *models.Task {
	t.Helper()
	task, err := e.svc.CreateTask(context.Background(), e.admin, production.NewTask{
		JobID:    jobID,
		Title:    title,
		Quantity: 1,
		Status:   string(status),
	})
	require.NoError(t, err)
	return task
}

func (e *testEnv) jobStatus(t *testing.T, jobID uuid.UUID) string {
	t.Helper()
	job, err := e.store.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	return job.Status
}

func ptr[T any](v T) *T { return &v }

func png(name string) attachment.Blob {
	return attachment.Blob{Filename: name, ContentType: "image/png", Data: []byte("png")}
}

func pdf(name string) attachment.Blob {
	return attachment.Blob{Filename: name, ContentType: "application/pdf", Data: []byte("pdf")}
}

func mp3(name string) attachment.Blob {
	return attachment.Blob{Filename: name, ContentType: "audio/mpeg", Data: []byte("mp3")}
}
