package production_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/attachment/mock"
	"github.com/shopfloor/shopfloor/internal/production"
	"github.com/shopfloor/shopfloor/internal/store"
	"github.com/shopfloor/shopfloor/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)

	task, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Title:       "Tote",
		Color:       "tan",
		Quantity:    12,
		CategoryID:  &env.category,
		Attachments: []attachment.Blob{png("front.png"), pdf("drawing.pdf"), png("back.png")},
	})
	require.NoError(t, err)

	assert.Equal(t, models.TaskStatusPending, task.Status)
	assert.Equal(t, 1, task.Version)
	assert.Equal(t, []string{
		"https://files.test/factory/tasks/front.png",
		"https://files.test/factory/tasks/back.png",
	}, task.Images)
	assert.Equal(t, []string{"https://files.test/factory/tasks/drawing.pdf"}, task.Documents)
	assert.Empty(t, task.History)

	got, err := env.svc.GetJob(ctx, env.admin, job.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{task.ID}, got.TaskIDs)
}

func TestCreateTask_LegacyStatus(t *testing.T) {
	env := newTestEnv(t)
	job := env.job(t)

	task, err := env.svc.CreateTask(context.Background(), env.admin, production.NewTask{JobID: job.ID, Title: "a", Status: "Completed"})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, task.Status)
	assert.Equal(t, models.JobStatusCompleted, env.jobStatus(t, job.ID))
}

func TestCreateTask_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	missing := uuid.New()

	tests := []struct {
		name    string
		ident   models.Identity
		in      production.NewTask
		wantErr error
	}{
		{"worker", env.cutter, production.NewTask{JobID: job.ID}, production.ErrForbidden},
		{"unknown status", env.admin, production.NewTask{JobID: job.ID, Status: "In Progress"}, production.ErrInvalidInput},
		{"negative quantity", env.admin, production.NewTask{JobID: job.ID, Quantity: -1}, production.ErrInvalidInput},
		{"missing job", env.admin, production.NewTask{JobID: missing}, production.ErrNotFound},
		{"missing category", env.admin, production.NewTask{JobID: job.ID, CategoryID: &missing}, production.ErrNotFound},
		{"unsupported attachment", env.admin, production.NewTask{
			JobID:       job.ID,
			Attachments: []attachment.Blob{{Filename: "a.exe", ContentType: "application/x-msdownload", Data: []byte("x")}},
		}, production.ErrInvalidInput},
		{"empty attachment", env.admin, production.NewTask{
			JobID:       job.ID,
			Attachments: []attachment.Blob{{Filename: "a.png", ContentType: "image/png"}},
		}, production.ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateTask(ctx, tc.ident, tc.in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
	assert.Empty(t, env.files.Stored(), "nothing uploaded for rejected input")
	tasks, err := env.svc.ListTasks(ctx, env.admin)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCreateTask_UploadFailureIsAllOrNothing(t *testing.T) {
	files := mock.NewFailingOnStore("back.png", attachment.ErrUnreachable)
	env := newTestEnv(t, withFiles(files))
	ctx := context.Background()
	job := env.job(t)

	_, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Title:       "Tote",
		Attachments: []attachment.Blob{png("front.png"), png("back.png")},
	})
	require.ErrorIs(t, err, production.ErrUpstream)
	assert.ErrorIs(t, err, attachment.ErrUnreachable)

	// Anything that made it to storage is deleted again.
	assert.ElementsMatch(t, files.Stored(), files.Deleted())

	tasks, err := env.svc.TasksByJob(ctx, env.admin, job.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, models.JobStatusPending, env.jobStatus(t, job.ID))
}

func TestCreateTask_UploadTimeout(t *testing.T) {
	env := newTestEnv(t, withFiles(mock.NewTimeoutStore()))
	job := env.job(t)

	_, err := env.svc.CreateTask(context.Background(), env.admin, production.NewTask{
		JobID:       job.ID,
		Attachments: []attachment.Blob{png("a.png")},
	})
	require.ErrorIs(t, err, production.ErrUpstream)
	assert.ErrorIs(t, err, attachment.ErrTimeout)
}

// failingTxStore fails every task insert after uploads have succeeded.
type failingTxStore struct {
	*store.MemoryStore
}

func (f *failingTxStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return f.MemoryStore.InTx(ctx, func(ctx context.Context, tx store.Store) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return errors.New("commit failed")
	})
}

func TestCreateTask_PersistFailureDiscardsUploads(t *testing.T) {
	env := newTestEnv(t, withStore(func(m *store.MemoryStore) store.Store { return &failingTxStore{m} }))
	ctx := context.Background()
	// Jobs are created outside any transaction.
	job := env.job(t)

	_, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Attachments: []attachment.Blob{png("a.png"), pdf("b.pdf")},
	})
	require.Error(t, err)
	assert.Len(t, env.files.Stored(), 2)
	assert.ElementsMatch(t, env.files.Stored(), env.files.Deleted())

	tasks, err := env.store.ListTasks(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, tasks, "transaction rolled back")
}

func TestUpdateTask_RecordsHistoryBeforeOverwrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task := env.task(t, job.ID, "Tote", models.TaskStatusPending)

	updated, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{
		Title:  ptr("Tote bag"),
		Status: ptr("cutting"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Tote bag", updated.Title)
	assert.Equal(t, models.TaskStatusCutting, updated.Status)
	assert.Equal(t, 2, updated.Version)

	require.Len(t, updated.History, 1)
	prev := updated.History[0]
	assert.Equal(t, "Tote", prev.PreviousState.Title)
	assert.Equal(t, models.TaskStatusPending, prev.PreviousState.Status)
	assert.Equal(t, env.admin.ID, prev.UpdatedBy)

	updated, err = env.svc.UpdateTask(ctx, env.cutter, task.ID, production.TaskPatch{Status: ptr("stitching")})
	require.NoError(t, err)
	require.Len(t, updated.History, 2)
	assert.Equal(t, models.TaskStatusCutting, updated.History[1].PreviousState.Status)
	assert.Equal(t, env.cutter.ID, updated.History[1].UpdatedBy)

	history, err := env.svc.TaskHistory(ctx, env.admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.History, history)
}

func TestUpdateTask_KeepsOmittedFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Title:       "Tote",
		Description: "canvas",
		Color:       "tan",
		Size:        "L",
		Quantity:    5,
		CategoryID:  &env.category,
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Quantity: ptr(7)})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)
	assert.Equal(t, "Tote", updated.Title)
	assert.Equal(t, "canvas", updated.Description)
	assert.Equal(t, "tan", updated.Color)
	assert.Equal(t, "L", updated.Size)
	assert.Equal(t, models.TaskStatusPending, updated.Status)
	assert.Equal(t, &env.category, updated.CategoryID)
	assert.Equal(t, task.CreatedAt, updated.CreatedAt)
	assert.Equal(t, task.JobID, updated.JobID)
}

func TestUpdateTask_AppendsAttachments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Attachments: []attachment.Blob{png("a.png")},
	})
	require.NoError(t, err)

	updated, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{
		Attachments: []attachment.Blob{png("b.png"), pdf("c.pdf"), mp3("note.mp3")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://files.test/factory/tasks/a.png",
		"https://files.test/factory/tasks/b.png",
	}, updated.Images)
	assert.Equal(t, []string{"https://files.test/factory/tasks/c.pdf"}, updated.Documents)
	require.Len(t, updated.VoiceMessages, 1)
	assert.Equal(t, "https://files.test/factory/tasks/voice/note.mp3", updated.VoiceMessages[0].URL)
	assert.Equal(t, env.admin.ID, updated.VoiceMessages[0].AuthorID)
}

func TestUpdateTask_UploadFailureLeavesTaskUntouched(t *testing.T) {
	files := mock.NewFailingOnStore("bad.png", attachment.ErrRejected)
	env := newTestEnv(t, withFiles(files))
	ctx := context.Background()
	job := env.job(t)
	task := env.task(t, job.ID, "Tote", models.TaskStatusPending)

	_, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{
		Title:       ptr("renamed"),
		Attachments: []attachment.Blob{png("ok.png"), png("bad.png")},
	})
	require.ErrorIs(t, err, production.ErrUpstream)

	got, err := env.svc.GetTask(ctx, env.admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tote", got.Title)
	assert.Empty(t, got.Images)
	assert.Empty(t, got.History)
	assert.Equal(t, 1, got.Version)
}

func TestUpdateTask_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task := env.task(t, job.ID, "Tote", models.TaskStatusPending)
	missing := uuid.New()

	_, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Status: ptr("done")})
	assert.ErrorIs(t, err, production.ErrInvalidInput)

	_, err = env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Quantity: ptr(-2)})
	assert.ErrorIs(t, err, production.ErrInvalidInput)

	_, err = env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{CategoryID: &missing})
	assert.ErrorIs(t, err, production.ErrNotFound)

	_, err = env.svc.UpdateTask(ctx, env.admin, missing, production.TaskPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, production.ErrNotFound)

	got, err := env.svc.GetTask(ctx, env.admin, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.History, "rejected updates record no history")
}

func TestUpdateTask_WorkerVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	cutting := env.task(t, job.ID, "strap", models.TaskStatusCutting)
	printing := env.task(t, job.ID, "panel", models.TaskStatusPrinting)

	updated, err := env.svc.UpdateTask(ctx, env.cutter, cutting.ID, production.TaskPatch{Status: ptr("stitching")})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusStitching, updated.Status)

	// Once handed on, the task is out of the cutter's view.
	_, err = env.svc.GetTask(ctx, env.cutter, cutting.ID)
	assert.ErrorIs(t, err, production.ErrForbidden)

	_, err = env.svc.UpdateTask(ctx, env.cutter, printing.ID, production.TaskPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, production.ErrForbidden)

	_, err = env.svc.GetTask(ctx, env.member, printing.ID)
	assert.ErrorIs(t, err, production.ErrForbidden)

	_, err = env.svc.ListTasks(ctx, env.member)
	assert.ErrorIs(t, err, production.ErrForbidden)
}

// racingStore applies a competing edit to one task just before the next
// transaction starts.
type racingStore struct {
	*store.MemoryStore
	taskID uuid.UUID
	edit   func(*models.Task)
}

func (r *racingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	if r.edit != nil {
		task, err := r.MemoryStore.GetTask(ctx, r.taskID)
		if err != nil {
			return err
		}
		r.edit(task)
		if err := r.MemoryStore.UpdateTask(ctx, task, task.Version); err != nil {
			return err
		}
		r.edit = nil
	}
	return r.MemoryStore.InTx(ctx, fn)
}

func TestUpdateTask_ConcurrentChangeFailsSecondWriter(t *testing.T) {
	tests := []struct {
		name    string
		edit    func(*models.Task)
		wantErr error
	}{
		{"task moved out of worker's stage", func(t *models.Task) { t.Status = models.TaskStatusStitching }, production.ErrForbidden},
		{"task edited in the same stage", func(t *models.Task) { t.Description = "admin note" }, production.ErrConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var racing *racingStore
			env := newTestEnv(t, withStore(func(m *store.MemoryStore) store.Store {
				racing = &racingStore{MemoryStore: m}
				return racing
			}))
			ctx := context.Background()
			job := env.job(t)
			task := env.task(t, job.ID, "strap", models.TaskStatusCutting)

			racing.taskID = task.ID
			racing.edit = tc.edit
			_, err := env.svc.UpdateTask(ctx, env.cutter, task.ID, production.TaskPatch{Title: ptr("cutter edit")})
			require.ErrorIs(t, err, tc.wantErr)

			got, err := env.store.GetTask(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, "strap", got.Title)
			assert.Empty(t, got.History, "the rejected writer records no history")
		})
	}
}

func TestUpdateTask_ExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task := env.task(t, job.ID, "Tote", models.TaskStatusPending)

	_, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Title: ptr("a"), ExpectedVersion: ptr(1)})
	require.NoError(t, err)

	_, err = env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Title: ptr("b"), ExpectedVersion: ptr(1)})
	assert.ErrorIs(t, err, production.ErrConflict)
}

func TestUpdateTask_ConcurrentSameVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task := env.task(t, job.ID, "Tote", models.TaskStatusPending)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{
				Status:          ptr("cutting"),
				ExpectedVersion: ptr(1),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, production.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, conflicts)

	got, err := env.svc.GetTask(ctx, env.admin, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, got.History, 1)
}

func TestUpdateTask_ConcurrentStatusChangesConverge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)

	var tasks []*models.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, env.task(t, job.ID, "t", models.TaskStatusStitching))
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.UpdateTask(ctx, env.admin, task.ID, production.TaskPatch{Status: ptr("completed")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, models.JobStatusCompleted, env.jobStatus(t, job.ID))
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	task, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{
		JobID:       job.ID,
		Attachments: []attachment.Blob{png("a.png"), pdf("b.pdf")},
	})
	require.NoError(t, err)
	_, err = env.svc.AddVoiceMessage(ctx, env.admin, task.ID, ptr(mp3("note.mp3")))
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.DeleteTask(ctx, env.cutter, task.ID), production.ErrForbidden)
	require.NoError(t, env.svc.DeleteTask(ctx, env.admin, task.ID))

	assert.ElementsMatch(t, []string{
		"https://files.test/factory/tasks/a.png",
		"https://files.test/factory/tasks/b.pdf",
		"https://files.test/factory/tasks/voice/note.mp3",
	}, env.files.Deleted())

	_, err = env.svc.GetTask(ctx, env.admin, task.ID)
	assert.ErrorIs(t, err, production.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteTask(ctx, env.admin, task.ID), production.ErrNotFound)

	got, err := env.svc.GetJob(ctx, env.admin, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TaskIDs)
}

func TestListTasks_Scoping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	other := env.job(t)
	cutting := env.task(t, job.ID, "strap", models.TaskStatusCutting)
	env.task(t, job.ID, "panel", models.TaskStatusPrinting)
	env.task(t, other.ID, "lining", models.TaskStatusCutting)

	all, err := env.svc.ListTasks(ctx, env.admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := env.svc.ListTasks(ctx, env.cutter)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, task := range mine {
		assert.Equal(t, models.TaskStatusCutting, task.Status)
	}

	inJob, err := env.svc.TasksByJob(ctx, env.cutter, job.ID)
	require.NoError(t, err)
	require.Len(t, inJob, 1)
	assert.Equal(t, cutting.ID, inJob[0].ID)

	_, err = env.svc.TasksByJob(ctx, env.admin, uuid.New())
	assert.ErrorIs(t, err, production.ErrNotFound)

	_, err = env.svc.TasksByCategory(ctx, env.admin, uuid.New())
	assert.ErrorIs(t, err, production.ErrNotFound)
}

func TestTasksByCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	job := env.job(t)
	_, err := env.svc.CreateTask(ctx, env.admin, production.NewTask{JobID: job.ID, Status: "cutting", CategoryID: &env.category})
	require.NoError(t, err)
	env.task(t, job.ID, "uncategorised", models.TaskStatusCutting)

	tasks, err := env.svc.TasksByCategory(ctx, env.cutter, env.category)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
