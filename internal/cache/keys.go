package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("shopfloor:job:%s:status", jobID)
}

// RateLimitKey buckets requests per caller per minute window.
func RateLimitKey(subject string, window int64) string {
	return fmt.Sprintf("shopfloor:ratelimit:%s:%d", subject, window)
}

// ClientSuggestionsKey is case-insensitive in prefix.
func ClientSuggestionsKey(prefix string) string {
	return fmt.Sprintf("shopfloor:clients:%s", strings.ToLower(prefix))
}
