package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopfloor/shopfloor/internal/attachment"
)

// MockStore satisfies attachment.Store for testing. Without StoreFunc it
// records blobs in memory and returns deterministic URLs.
type MockStore struct {
	StoreFunc  func(ctx context.Context, blob attachment.Blob, folder string) (string, error)
	DeleteFunc func(ctx context.Context, url string) error

	mu      sync.Mutex
	stored  []string
	deleted []string
}

func (m *MockStore) Store(ctx context.Context, blob attachment.Blob, folder string) (string, error) {
	var (
		url string
		err error
	)
	if m.StoreFunc != nil {
		url, err = m.StoreFunc(ctx, blob, folder)
	} else {
		url = fmt.Sprintf("https://files.test/%s/%s", folder, blob.Filename)
	}
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.stored = append(m.stored, url)
	m.mu.Unlock()
	return url, nil
}

func (m *MockStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, url)
	m.mu.Unlock()
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, url)
	}
	return nil
}

// Stored returns the URLs of every successful upload.
func (m *MockStore) Stored() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stored...)
}

// Deleted returns every URL passed to Delete.
func (m *MockStore) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// NewMockStore returns a MockStore with default behaviour.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// NewFailingStore returns a MockStore whose uploads always fail with err.
func NewFailingStore(err error) *MockStore {
	return &MockStore{
		StoreFunc: func(_ context.Context, _ attachment.Blob, _ string) (string, error) {
			return "", err
		},
	}
}

// NewFailingOnStore fails uploads of the named file and accepts the rest.
func NewFailingOnStore(filename string, err error) *MockStore {
	return &MockStore{
		StoreFunc: func(_ context.Context, blob attachment.Blob, folder string) (string, error) {
			if blob.Filename == filename {
				return "", err
			}
			return fmt.Sprintf("https://files.test/%s/%s", folder, blob.Filename), nil
		},
	}
}

// NewTimeoutStore returns a MockStore whose uploads block until the context
// is cancelled.
func NewTimeoutStore() *MockStore {
	return &MockStore{
		StoreFunc: func(ctx context.Context, _ attachment.Blob, _ string) (string, error) {
			<-ctx.Done()
			return "", fmt.Errorf("%w: %w", attachment.ErrTimeout, ctx.Err())
		},
	}
}

var _ attachment.Store = (*MockStore)(nil)
