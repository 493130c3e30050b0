package attachment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStore guards a Store with a circuit breaker. Transport failures
// count towards tripping it. Rejected and cancelled requests do not.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// BreakerOption configures a BreakerStore.
type BreakerOption func(*gobreaker.Settings)

// WithOpenTimeout sets how long the breaker stays open before probing again.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

// WithMaxFailures sets how many consecutive failures trip the breaker.
func WithMaxFailures(n uint32) BreakerOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next Store, opts ...BreakerOption) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "attachment-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRejected) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) Store(ctx context.Context, blob Blob, folder string) (string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Store(ctx, blob, folder)
	})
	if err != nil {
		return "", breakerError(err)
	}
	return res.(string), nil
}

func (b *BreakerStore) Delete(ctx context.Context, url string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Delete(ctx, url)
	})
	return breakerError(err)
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

var _ Store = (*BreakerStore)(nil)
