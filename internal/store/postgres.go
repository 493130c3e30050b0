package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   dbtx
	inTx bool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PostgresStore{pool: s.pool, db: tx, inTx: true})
	})
}

// --- Identities ---

func (s *PostgresStore) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	var i models.Identity
	err := s.db.QueryRow(ctx,
		`SELECT id, role, name, email FROM identities WHERE id = $1`, id,
	).Scan(&i.ID, &i.Role, &i.Name, &i.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &i, nil
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, identity_id, name, key_hash, key_prefix, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.IdentityID, &k.Name, &k.KeyHash, &k.KeyPrefix,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

// --- Categories ---

func (s *PostgresStore) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	err := s.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]*models.Category, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []*models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- Jobs ---

const jobColumns = `j.id, j.human_id, j.client_name, j.category_id, j.status, j.created_by, j.created_at, j.updated_at,
	COALESCE(array_agg(t.id ORDER BY t.created_at, t.id) FILTER (WHERE t.id IS NOT NULL), '{}')`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.HumanID, &j.ClientName, &j.CategoryID, &j.Status,
		&j.CreatedBy, &j.CreatedAt, &j.UpdatedAt, &j.TaskIDs)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (id, human_id, client_name, category_id, status, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.HumanID, job.ClientName, job.CategoryID, job.Status, job.CreatedBy, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.db.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j LEFT JOIN tasks t ON t.job_id = j.id
		 WHERE j.id = $1 GROUP BY j.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) LockJob(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock job: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *models.Job) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET client_name = $2, category_id = $3, updated_at = $4 WHERE id = $1`,
		job.ID, job.ClientName, job.CategoryID, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) JobHumanIDExists(ctx context.Context, humanID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE human_id = $1)`, humanID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check job human id: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []*models.Job{}, nil
	}

	var conditions []string
	var args []any
	argIdx := 1

	if filter.CreatedBy != nil {
		conditions = append(conditions, fmt.Sprintf("j.created_by = $%d", argIdx))
		args = append(args, *filter.CreatedBy)
		argIdx++
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("j.category_id = $%d", argIdx))
		args = append(args, *filter.CategoryID)
		argIdx++
	}
	if filter.IDs != nil {
		conditions = append(conditions, fmt.Sprintf("j.id = ANY($%d)", argIdx))
		args = append(args, filter.IDs)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j LEFT JOIN tasks t ON t.job_id = j.id
		 `+where+` GROUP BY j.id ORDER BY j.created_at DESC, j.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ClientNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT client_name FROM jobs
		 WHERE lower(client_name) LIKE lower($1) || '%'
		 GROUP BY client_name ORDER BY MAX(created_at) DESC LIMIT $2`, escapeLike(prefix), limit)
	if err != nil {
		return nil, fmt.Errorf("list client names: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan client name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- Tasks ---

const taskColumns = `id, job_id, category_id, title, description, color, size, quantity, status,
	images, documents, version, created_at, updated_at`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.JobID, &t.CategoryID, &t.Title, &t.Description, &t.Color, &t.Size,
		&t.Quantity, &t.Status, &t.Images, &t.Documents, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.VoiceMessages = []models.VoiceMessage{}
	t.TextMessages = []models.TextMessage{}
	t.History = []models.HistoryEntry{}
	return &t, nil
}

func (s *PostgresStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tasks (id, job_id, category_id, title, description, color, size, quantity, status,
		                    images, documents, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		task.ID, task.JobID, task.CategoryID, task.Title, task.Description, task.Color, task.Size,
		task.Quantity, task.Status, nonNil(task.Images), nonNil(task.Documents), task.Version,
		task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("create task: %w", err)
	}
	for i := range task.VoiceMessages {
		if err := s.AppendVoiceMessage(ctx, task.ID, &task.VoiceMessages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if err := s.attachMessages(ctx, []*models.Task{t}); err != nil {
		return nil, err
	}
	history, err := s.ListHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	t.History = history
	return t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task *models.Task, readVersion int) error {
	var newVersion int
	err := s.db.QueryRow(ctx,
		`UPDATE tasks SET category_id = $3, title = $4, description = $5, color = $6, size = $7,
		                  quantity = $8, status = $9, images = $10, documents = $11,
		                  updated_at = $12, version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING version`,
		task.ID, readVersion, task.CategoryID, task.Title, task.Description, task.Color, task.Size,
		task.Quantity, task.Status, nonNil(task.Images), nonNil(task.Documents), task.UpdatedAt,
	).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)`, task.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check task exists: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	task.Version = newVersion
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error) {
	if filter.Statuses != nil && len(filter.Statuses) == 0 {
		return []*models.Task{}, nil
	}

	var conditions []string
	var args []any
	argIdx := 1

	if filter.JobID != nil {
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", argIdx))
		args = append(args, *filter.JobID)
		argIdx++
	}
	if filter.CategoryID != nil {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argIdx))
		args = append(args, *filter.CategoryID)
		argIdx++
	}
	if filter.Statuses != nil {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, statusStrings(filter.Statuses))
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachMessages(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *PostgresStore) JobIDsWithTaskStatus(ctx context.Context, statuses []models.TaskStatus) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if len(statuses) == 0 {
		return ids, nil
	}
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT job_id FROM tasks WHERE status = ANY($1)`, statusStrings(statuses))
	if err != nil {
		return nil, fmt.Errorf("list job ids by task status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- History & messages ---

func (s *PostgresStore) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	state, err := json.Marshal(entry.PreviousState)
	if err != nil {
		return fmt.Errorf("marshal history snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO task_history (id, task_id, updated_by, updated_at, previous_state)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.TaskID, entry.UpdatedBy, entry.UpdatedAt, state)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("append task history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, taskID uuid.UUID) ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, task_id, updated_by, updated_at, previous_state
		 FROM task_history WHERE task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	defer rows.Close()

	entries := []models.HistoryEntry{}
	for rows.Next() {
		var e models.HistoryEntry
		var state []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.UpdatedBy, &e.UpdatedAt, &state); err != nil {
			return nil, fmt.Errorf("scan task history: %w", err)
		}
		if err := json.Unmarshal(state, &e.PreviousState); err != nil {
			return nil, fmt.Errorf("decode history snapshot: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) AppendVoiceMessage(ctx context.Context, taskID uuid.UUID, msg *models.VoiceMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO task_voice_messages (id, task_id, author_id, url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, taskID, msg.AuthorID, msg.URL, msg.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("append voice message: %w", err)
	}
	return s.touchTask(ctx, taskID, msg.CreatedAt)
}

func (s *PostgresStore) AppendTextMessage(ctx context.Context, taskID uuid.UUID, msg *models.TextMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO task_text_messages (id, task_id, author_id, text, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, taskID, msg.AuthorID, msg.Text, msg.CreatedAt)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("append text message: %w", err)
	}
	return s.touchTask(ctx, taskID, msg.CreatedAt)
}

func (s *PostgresStore) touchTask(ctx context.Context, taskID uuid.UUID, at time.Time) error {
	if _, err := s.db.Exec(ctx, `UPDATE tasks SET updated_at = $2 WHERE id = $1`, taskID, at); err != nil {
		return fmt.Errorf("touch task: %w", err)
	}
	return nil
}

// attachMessages loads voice and text messages for tasks in two queries.
func (s *PostgresStore) attachMessages(ctx context.Context, tasks []*models.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*models.Task, len(tasks))
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := s.db.Query(ctx,
		`SELECT task_id, id, author_id, url, created_at FROM task_voice_messages
		 WHERE task_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return fmt.Errorf("list voice messages: %w", err)
	}
	for rows.Next() {
		var taskID uuid.UUID
		var m models.VoiceMessage
		if err := rows.Scan(&taskID, &m.ID, &m.AuthorID, &m.URL, &m.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan voice message: %w", err)
		}
		byID[taskID].VoiceMessages = append(byID[taskID].VoiceMessages, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.Query(ctx,
		`SELECT task_id, id, author_id, text, created_at FROM task_text_messages
		 WHERE task_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return fmt.Errorf("list text messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID uuid.UUID
		var m models.TextMessage
		if err := rows.Scan(&taskID, &m.ID, &m.AuthorID, &m.Text, &m.CreatedAt); err != nil {
			return fmt.Errorf("scan text message: %w", err)
		}
		byID[taskID].TextMessages = append(byID[taskID].TextMessages, m)
	}
	return rows.Err()
}

func statusStrings(statuses []models.TaskStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503" // foreign_key_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
