package riot

import (
	"errors"
	"fmt"
)

// ErrNoKeysAvailable is returned when every configured API key is disabled
// and the emergency re-enable pass could not produce a usable one.
var ErrNoKeysAvailable = errors.New("no riot api keys available")

// ValidationError indicates the caller supplied malformed identifying input.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError indicates the upstream has no record for the requested entity.
type NotFoundError struct {
	Context string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Context)
}

// AuthError indicates the upstream rejected every credential we tried.
// Actionable by an operator, not the end user.
type AuthError struct {
	KeyID string
}

func (e *AuthError) Error() string {
	if e.KeyID != "" {
		return fmt.Sprintf("riot api rejected credentials (last key %s)", e.KeyID)
	}
	return "riot api rejected credentials"
}

// RateLimitedError indicates the scheduler exhausted its 429 retries.
type RateLimitedError struct {
	Endpoint string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited on %s after retries", e.Endpoint)
}

// TimeoutError indicates a request kept timing out past the retry budget.
type TimeoutError struct {
	Endpoint string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after retries", e.Endpoint)
}

// UpstreamError carries an unexpected upstream status or payload shape.
type UpstreamError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error on %s: status %d", e.Endpoint, e.Status)
}
