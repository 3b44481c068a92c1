package source

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSourceUnavailable covers transport failures, rejected credentials and
	// 5xx responses. It is fatal for a run.
	ErrSourceUnavailable = errors.New("message source unavailable")

	// ErrMediaNotFound means the message or its media no longer exists.
	ErrMediaNotFound = errors.New("media not found")
)

// RateLimitError is returned on HTTP 429. RetryAfter is zero when the
// gateway did not send a Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("message source rate limited, retry after %s", e.RetryAfter)
	}
	return "message source rate limited"
}

// StatusError carries an unexpected HTTP status from the gateway.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}
