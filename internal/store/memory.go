package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor/shopfloor/pkg/models"
)

// MemoryStore is an in-memory implementation of Store. It is safe for
// concurrent use and backs the unit tests of the layers above the store.
type MemoryStore struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *memoryData
}

type memoryData struct {
	identities map[uuid.UUID]*models.Identity
	apiKeys    map[uuid.UUID]*models.APIKey
	categories map[uuid.UUID]*models.Category
	jobs       map[uuid.UUID]*models.Job
	tasks      map[uuid.UUID]*models.Task
	history    map[uuid.UUID][]models.HistoryEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		identities: make(map[uuid.UUID]*models.Identity),
		apiKeys:    make(map[uuid.UUID]*models.APIKey),
		categories: make(map[uuid.UUID]*models.Category),
		jobs:       make(map[uuid.UUID]*models.Job),
		tasks:      make(map[uuid.UUID]*models.Task),
		history:    make(map[uuid.UUID][]models.HistoryEntry),
	}}
}

// PutIdentity seeds an identity.
func (s *MemoryStore) PutIdentity(i *models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *i
	s.data.identities[i.ID] = &c
}

// PutAPIKey seeds an API key.
func (s *MemoryStore) PutAPIKey(k *models.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *k
	s.data.apiKeys[k.ID] = &c
}

// PutCategory seeds a category.
func (s *MemoryStore) PutCategory(c *models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.data.categories[c.ID] = &cp
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// InTx serialises transactions and restores a snapshot of the data if fn
// fails. Reads outside a transaction may observe uncommitted writes.
func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memoryTx{s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// memoryTx is the Store handed to InTx callbacks; nested InTx calls run inline.
type memoryTx struct {
	*MemoryStore
}

func (t *memoryTx) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// --- Identities ---

func (s *MemoryStore) GetIdentity(_ context.Context, id uuid.UUID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.data.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *i
	return &c, nil
}

func (s *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.APIKey
	for _, k := range s.data.apiKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			c := *k
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateAPIKeyLastUsed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.data.apiKeys[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	k.LastUsedAt = &now
	k.UpdatedAt = now
	return nil
}

// --- Categories ---

func (s *MemoryStore) GetCategory(_ context.Context, id uuid.UUID) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCategories(_ context.Context) ([]*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Category, 0, len(s.data.categories))
	for _, c := range s.data.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// --- Jobs ---

func (s *MemoryStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.jobs[job.ID]; ok {
		return ErrDuplicateKey
	}
	for _, j := range s.data.jobs {
		if j.HumanID == job.HumanID {
			return ErrDuplicateKey
		}
	}
	c := *job
	c.TaskIDs = nil
	s.data.jobs[job.ID] = &c
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.data.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.data.jobView(j), nil
}

func (s *MemoryStore) LockJob(_ context.Context, id uuid.UUID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data.jobs[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.data.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	j.ClientName = job.ClientName
	j.CategoryID = copyUUID(job.CategoryID)
	j.UpdatedAt = job.UpdatedAt
	return nil
}

func (s *MemoryStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.data.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) JobHumanIDExists(_ context.Context, humanID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, j := range s.data.jobs {
		if j.HumanID == humanID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids map[uuid.UUID]bool
	if filter.IDs != nil {
		ids = make(map[uuid.UUID]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	out := []*models.Job{}
	for _, j := range s.data.jobs {
		if filter.CreatedBy != nil && j.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.CategoryID != nil && (j.CategoryID == nil || *j.CategoryID != *filter.CategoryID) {
			continue
		}
		if ids != nil && !ids[j.ID] {
			continue
		}
		out = append(out, s.data.jobView(j))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.After(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) ClientNames(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]time.Time)
	p := strings.ToLower(prefix)
	for _, j := range s.data.jobs {
		if !strings.HasPrefix(strings.ToLower(j.ClientName), p) {
			continue
		}
		if t, ok := latest[j.ClientName]; !ok || j.CreatedAt.After(t) {
			latest[j.ClientName] = j.CreatedAt
		}
	}
	names := make([]string, 0, len(latest))
	for n := range latest {
		names = append(names, n)
	}
	sort.Slice(names, func(a, b int) bool {
		ta, tb := latest[names[a]], latest[names[b]]
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return names[a] < names[b]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

// --- Tasks ---

func (s *MemoryStore) CreateTask(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.tasks[task.ID]; ok {
		return ErrDuplicateKey
	}
	if _, ok := s.data.jobs[task.JobID]; !ok {
		return ErrNotFound
	}
	c := cloneTask(task)
	c.History = nil
	s.data.tasks[task.ID] = c
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := cloneTask(t)
	c.History = append([]models.HistoryEntry{}, s.data.history[id]...)
	return c, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, task *models.Task, readVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	if t.Version != readVersion {
		return ErrVersionConflict
	}
	c := cloneTask(task)
	c.JobID = t.JobID
	c.CreatedAt = t.CreatedAt
	c.VoiceMessages = t.VoiceMessages
	c.TextMessages = t.TextMessages
	c.History = nil
	c.Version = readVersion + 1
	s.data.tasks[task.ID] = c
	task.Version = c.Version
	return nil
}

func (s *MemoryStore) DeleteTask(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(s.data.tasks, id)
	delete(s.data.history, id)
	return nil
}

func (s *MemoryStore) ListTasks(_ context.Context, filter TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var statuses map[models.TaskStatus]bool
	if filter.Statuses != nil {
		statuses = make(map[models.TaskStatus]bool, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses[st] = true
		}
	}

	out := []*models.Task{}
	for _, t := range s.data.tasks {
		if filter.JobID != nil && t.JobID != *filter.JobID {
			continue
		}
		if filter.CategoryID != nil && (t.CategoryID == nil || *t.CategoryID != *filter.CategoryID) {
			continue
		}
		if statuses != nil && !statuses[t.Status] {
			continue
		}
		c := cloneTask(t)
		c.History = []models.HistoryEntry{}
		out = append(out, c)
	}
	sortTasks(out)
	return out, nil
}

func (s *MemoryStore) JobIDsWithTaskStatus(_ context.Context, statuses []models.TaskStatus) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[models.TaskStatus]bool, len(statuses))
	for _, st := range statuses {
		allowed[st] = true
	}
	seen := make(map[uuid.UUID]bool)
	ids := []uuid.UUID{}
	for _, t := range s.data.tasks {
		if allowed[t.Status] && !seen[t.JobID] {
			seen[t.JobID] = true
			ids = append(ids, t.JobID)
		}
	}
	return ids, nil
}

// --- History & messages ---

func (s *MemoryStore) AppendHistory(_ context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.tasks[entry.TaskID]; !ok {
		return ErrNotFound
	}
	e := *entry
	e.PreviousState.CategoryID = copyUUID(entry.PreviousState.CategoryID)
	s.data.history[entry.TaskID] = append(s.data.history[entry.TaskID], e)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, taskID uuid.UUID) ([]models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.HistoryEntry{}, s.data.history[taskID]...), nil
}

func (s *MemoryStore) AppendVoiceMessage(_ context.Context, taskID uuid.UUID, msg *models.VoiceMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.VoiceMessages = append(append([]models.VoiceMessage{}, t.VoiceMessages...), *msg)
	t.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) AppendTextMessage(_ context.Context, taskID uuid.UUID, msg *models.TextMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.tasks[taskID]
	if !ok {
		return ErrNotFound
	}
	t.TextMessages = append(append([]models.TextMessage{}, t.TextMessages...), *msg)
	t.UpdatedAt = msg.CreatedAt
	return nil
}

// jobView copies j and materialises its task ids. Caller holds the read lock.
func (d *memoryData) jobView(j *models.Job) *models.Job {
	c := *j
	c.CategoryID = copyUUID(j.CategoryID)
	var tasks []*models.Task
	for _, t := range d.tasks {
		if t.JobID == j.ID {
			tasks = append(tasks, t)
		}
	}
	sortTasks(tasks)
	c.TaskIDs = make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		c.TaskIDs = append(c.TaskIDs, t.ID)
	}
	return &c
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		identities: make(map[uuid.UUID]*models.Identity, len(d.identities)),
		apiKeys:    make(map[uuid.UUID]*models.APIKey, len(d.apiKeys)),
		categories: make(map[uuid.UUID]*models.Category, len(d.categories)),
		jobs:       make(map[uuid.UUID]*models.Job, len(d.jobs)),
		tasks:      make(map[uuid.UUID]*models.Task, len(d.tasks)),
		history:    make(map[uuid.UUID][]models.HistoryEntry, len(d.history)),
	}
	for k, v := range d.identities {
		cp := *v
		c.identities[k] = &cp
	}
	for k, v := range d.apiKeys {
		cp := *v
		c.apiKeys[k] = &cp
	}
	for k, v := range d.categories {
		cp := *v
		c.categories[k] = &cp
	}
	for k, v := range d.jobs {
		cp := *v
		cp.CategoryID = copyUUID(v.CategoryID)
		c.jobs[k] = &cp
	}
	for k, v := range d.tasks {
		c.tasks[k] = cloneTask(v)
	}
	for k, v := range d.history {
		c.history[k] = append([]models.HistoryEntry{}, v...)
	}
	return c
}

func cloneTask(t *models.Task) *models.Task {
	c := *t
	c.CategoryID = copyUUID(t.CategoryID)
	c.Images = append([]string{}, t.Images...)
	c.Documents = append([]string{}, t.Documents...)
	c.VoiceMessages = append([]models.VoiceMessage{}, t.VoiceMessages...)
	c.TextMessages = append([]models.TextMessage{}, t.TextMessages...)
	c.History = append([]models.HistoryEntry{}, t.History...)
	return &c
}

func sortTasks(tasks []*models.Task) {
	sort.Slice(tasks, func(a, b int) bool {
		if !tasks[a].CreatedAt.Equal(tasks[b].CreatedAt) {
			return tasks[a].CreatedAt.Before(tasks[b].CreatedAt)
		}
		return tasks[a].ID.String() < tasks[b].ID.String()
	})
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

var _ Store = (*MemoryStore)(nil)
