package production_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/production"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var humanIDPattern = regexp.MustCompile(`^AI-[0-9]{6}$`)

// sequence returns a random source that replays values, repeating the last.
func sequence(values ...int) func(int) int {
	i := 0
	return func(int) int {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

// --- Identifier generation ---

func TestGenerateJobIdentifier_FormatAndUniqueness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		job, err := env.svc.CreateJob(ctx, env.admin, "Acme", nil)
		require.NoError(t, err)
		assert.Regexp(t, humanIDPattern, job.HumanID)
		assert.False(t, seen[job.HumanID], "duplicate identifier %s", job.HumanID)
		seen[job.HumanID] = true
	}
}

func TestGenerateJobIdentifier_RetriesOnCollision(t *testing.T) {
	env := newTestEnv(t, withServiceOption(production.WithRandom(sequence(0, 0, 1))))
	ctx := context.Background()

	first, err := env.svc.CreateJob(ctx, env.admin, "Acme", nil)
	require.NoError(t, err)
	assert.Equal(t, "AI-100000", first.HumanID)

	second, err := env.svc.CreateJob(ctx, env.admin, "Acme", nil)
	require.NoError(t, err)
	assert.Equal(t, "AI-100001", second.HumanID)
}

func TestGenerateJobIdentifier_Exhausted(t *testing.T) {
	env := newTestEnv(t,
		withServiceOption(production.WithRandom(sequence(0))),
		withConfig(production.Config{JobIDMaxAttempts: 3}),
	)
	ctx := context.Background()

	_, err := env.svc.CreateJob(ctx, env.admin, "Acme", nil)
	require.NoError(t, err)

	_, err = env.svc.GenerateJobIdentifier(ctx)
	assert.ErrorIs(t, err, production.ErrIDGenerationExhausted)

	_, err = env.svc.CreateJob(ctx, env.admin, "Globex", nil)
	assert.ErrorIs(t, err, production.ErrIDGenerationExhausted)
}

// racyStore reports identifiers as free but rejects the first inserts as
// duplicates, as when another instance wins the race.
type racyStore struct {
	*store.MemoryStore
	dupes int
}

func (r *racyStore) CreateJob(ctx context.Context, job *models.Job) error {
	if r.dupes > 0 {
		r.dupes--
		return store.ErrDuplicateKey
	}
	return r.MemoryStore.CreateJob(ctx, job)
}

func TestCreateJob_DuplicateOnInsertConsumesAttempt(t *testing.T) {
	t.Run("recovers within budget", func(t *testing.T) {
		env := newTestEnv(t,
			withConfig(production.Config{JobIDMaxAttempts: 3}),
			withStore(func(m *store.MemoryStore) store.Store { return &racyStore{MemoryStore: m, dupes: 2} }),
		)
		job, err := env.svc.CreateJob(context.Background(), env.admin, "Acme", nil)
		require.NoError(t, err)
		assert.Regexp(t, humanIDPattern, job.HumanID)
	})

	t.Run("exhausts budget", func(t *testing.T) {
		env := newTestEnv(t,
			withConfig(production.Config{JobIDMaxAttempts: 3}),
			withStore(func(m *store.MemoryStore) store.Store { return &racyStore{MemoryStore: m, dupes: 3} }),
		)
		_, err := env.svc.CreateJob(context.Background(), env.admin, "Acme", nil)
		assert.ErrorIs(t, err, production.ErrIDGenerationExhausted)
	})
}

// --- Jobs ---

func TestCreateJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	job, err := env.svc.CreateJob(ctx, env.admin, "  Acme  ", &env.category)
	require.NoError(t, err)
	assert.Equal(t, "Acme", job.ClientName)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Empty(t, job.TaskIDs)
	assert.Equal(t, env.admin.ID, job.CreatedBy)
	assert.Equal(t, models.JobStatusPending, env.cache.status(job.ID))
}

func TestCreateJob_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.CreateJob(ctx, env.admin, "  ", nil)
	assert.ErrorIs(t, err, production.ErrInvalidInput)

	missing := uuid.New()
	_, err = env.svc.CreateJob(ctx, env.admin, "Acme", &missing)
	assert.ErrorIs(t, err, production.ErrNotFound)

	_, err = env.svc.CreateJob(ctx, env.cutter, "Acme", nil)
	assert.ErrorIs(t, err, production.ErrForbidden)
}

func TestUpdateJob_RequiresBothFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)

	_, err := env.svc.UpdateJob(ctx, env.admin, job.ID, nil, &env.category)
	require.ErrorIs(t, err, production.ErrInvalidInput)
	assert.Contains(t, err.Error(), "clientName")

	_, err = env.svc.UpdateJob(ctx, env.admin, job.ID, ptr("Globex"), nil)
	require.ErrorIs(t, err, production.ErrInvalidInput)
	assert.Contains(t, err.Error(), "category")

	missing := uuid.New()
	_, err = env.svc.UpdateJob(ctx, env.admin, job.ID, ptr("Globex"), &missing)
	assert.ErrorIs(t, err, production.ErrNotFound)

	_, err = env.svc.UpdateJob(ctx, env.admin, uuid.New(), ptr("Globex"), &env.category)
	assert.ErrorIs(t, err, production.ErrNotFound)

	updated, err := env.svc.UpdateJob(ctx, env.admin, job.ID, ptr("Globex"), &env.category)
	require.NoError(t, err)
	assert.Equal(t, "Globex", updated.ClientName)
	assert.Equal(t, job.HumanID, updated.HumanID)
}

func TestGetJob_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	env.task(t, job.ID, "panel", models.TaskStatusPrinting)

	_, err := env.svc.GetJob(ctx, env.cutter, job.ID)
	assert.ErrorIs(t, err, production.ErrForbidden)

	env.task(t, job.ID, "strap", models.TaskStatusCutting)
	got, err := env.svc.GetJob(ctx, env.cutter, job.ID)
	require.NoError(t, err)
	assert.Len(t, got.TaskIDs, 2)

	_, err = env.svc.GetJob(ctx, env.member, job.ID)
	assert.ErrorIs(t, err, production.ErrForbidden)

	_, err = env.svc.GetJob(ctx, env.admin, uuid.New())
	assert.ErrorIs(t, err, production.ErrNotFound)
}

func TestListJobs_AdminOwnJobs(t *testing.T) {
	env := newTestEnv(t, withAdminOwnJobs())
	ctx := context.Background()
	other := models.Identity{ID: uuid.New(), Role: models.RoleSuperadmin}

	mine := env.job(t)
	_, err := env.svc.CreateJob(ctx, other, "Globex", nil)
	require.NoError(t, err)

	jobs, err := env.svc.ListJobs(ctx, env.admin)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, mine.ID, jobs[0].ID)

	_, err = env.svc.JobStatus(ctx, other, mine.ID)
	assert.ErrorIs(t, err, production.ErrForbidden)
}

func TestJobsByCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	_, err := env.svc.CreateJob(ctx, env.admin, "Uncategorised", nil)
	require.NoError(t, err)

	jobs, err := env.svc.JobsByCategory(ctx, env.admin, env.category)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)

	_, err = env.svc.JobsByCategory(ctx, env.admin, uuid.New())
	assert.ErrorIs(t, err, production.ErrNotFound)
}

func TestJobStatus_CacheFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)

	status, err := env.svc.JobStatus(ctx, env.admin, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, status)

	// A cached value wins over the store for unscoped admins.
	require.NoError(t, env.cache.SetJobStatus(ctx, job.ID, models.JobStatusCompleted, 0))
	status, err = env.svc.JobStatus(ctx, env.admin, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, status)

	_, err = env.svc.JobStatus(ctx, env.admin, uuid.New())
	assert.ErrorIs(t, err, production.ErrNotFound)
}

func TestClientSuggestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, name := range []string{"Acme", "Acme Shoes", "Globex"} {
		_, err := env.svc.CreateJob(ctx, env.admin, name, nil)
		require.NoError(t, err)
	}

	names, err := env.svc.ClientSuggestions(ctx, env.admin, "ac")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Acme", "Acme Shoes"}, names)

	// Served from cache until it expires.
	_, err = env.svc.CreateJob(ctx, env.admin, "Acorn", nil)
	require.NoError(t, err)
	names, err = env.svc.ClientSuggestions(ctx, env.admin, "AC")
	require.NoError(t, err)
	assert.Len(t, names, 2)

	_, err = env.svc.ClientSuggestions(ctx, env.cutter, "ac")
	assert.ErrorIs(t, err, production.ErrForbidden)
}

func TestClientSuggestions_LimitedToTen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, err := env.svc.CreateJob(ctx, env.admin, "Client "+string(rune('A'+i)), nil)
		require.NoError(t, err)
	}

	names, err := env.svc.ClientSuggestions(ctx, env.admin, "client")
	require.NoError(t, err)
	assert.Len(t, names, 10)
}
