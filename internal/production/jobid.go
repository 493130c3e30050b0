package production

import (
	"context"
	"fmt"
)

const (
	jobIDPrefix = "AI-"
	jobIDMin    = 100000
	jobIDSpan   = 900000
)

// GenerateJobIdentifier returns an unused human-readable job identifier of
// the form AI-NNNNNN. It gives up with ErrIDGenerationExhausted after the
// configured number of collisions.
func (s *Service) GenerateJobIdentifier(ctx context.Context) (string, error) {
	budget := s.cfg.JobIDMaxAttempts
	return s.generateJobIdentifier(ctx, &budget)
}

// generateJobIdentifier draws candidates until one is unused, spending one
// unit of budget per candidate.
func (s *Service) generateJobIdentifier(ctx context.Context, budget *int) (string, error) {
	for *budget > 0 {
		*budget--
		candidate := fmt.Sprintf("%s%06d", jobIDPrefix, jobIDMin+s.intn(jobIDSpan))
		exists, err := s.store.JobHumanIDExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking job identifier: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrIDGenerationExhausted, s.cfg.JobIDMaxAttempts)
}
