package forward

import (
	"fmt"
	"time"
)

// BackendError reports a failed outbound call. The request is never retried
// against a different backend: affinity and caller idempotency expectations
// are preserved even on failure.
type BackendError struct {
	Backend   int
	RequestID string
	Elapsed   time.Duration
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %d unavailable (request %s after %s): %v",
		e.Backend, e.RequestID, e.Elapsed, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
