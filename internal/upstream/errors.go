package upstream

import (
	"fmt"
	"time"
)

// APIError is an error reported by the upstream API: either a GraphQL
// errors payload or a non-success HTTP status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream api error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return "upstream api error: " + e.Message
}

// RateLimitError is returned when the upstream API throttles a request and
// the client either fails fast or has used up its retries.
type RateLimitError struct {
	RetryAfter time.Duration
	// Attempts is the number of requests sent, including the first.
	Attempts int
	// Exhausted is true when retries ran out rather than failing fast.
	Exhausted bool
}

// RetryAfterSeconds is the upstream reset window in seconds.
func (e *RateLimitError) RetryAfterSeconds() float64 {
	return e.RetryAfter.Seconds()
}

func (e *RateLimitError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("upstream rate limit reached after %d attempts, retry after %.0fs", e.Attempts, e.RetryAfterSeconds())
	}
	return fmt.Sprintf("upstream rate limit reached, retry after %.0fs", e.RetryAfterSeconds())
}
