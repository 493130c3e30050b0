package production

import (
	"errors"
	"fmt"

	"github.com/shopfloor/shopfloor/internal/access"
	"github.com/shopfloor/shopfloor/internal/attachment"
	"github.com/shopfloor/shopfloor/internal/store"
)

// Error kinds returned by the service. Callers match them with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidInput          = errors.New("invalid input")
	ErrForbidden             = access.ErrForbidden
	ErrIDGenerationExhausted = errors.New("job identifier generation exhausted")
	ErrConflict              = errors.New("conflict")
	ErrUpstream              = errors.New("upstream failure")
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

// translate maps store and attachment errors onto the service's error kinds.
// what names the entity for not-found errors.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return notFound(what)
	case errors.Is(err, store.ErrVersionConflict):
		return fmt.Errorf("%w: %s was modified concurrently", ErrConflict, what)
	case errors.Is(err, attachment.ErrUnreachable),
		errors.Is(err, attachment.ErrTimeout),
		errors.Is(err, attachment.ErrRejected):
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return err
}
