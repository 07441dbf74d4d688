package dispatch

import (
	"fmt"
	"time"
)

// FatalStatusError is a non-retryable HTTP failure: the request or its
// destination is wrong and retrying cannot help.
type FatalStatusError struct {
	StatusCode int
	Hint       string
}

func (e *FatalStatusError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("request rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request rejected with status %d: %s", e.StatusCode, e.Hint)
}

// RetriesExhaustedError reports a request that stayed transient past the
// attempt budget.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retry limit reached after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// SessionTimeoutError reports the invocation-wide send deadline firing.
// It is always fatal, for either sink.
type SessionTimeoutError struct {
	Timeout time.Duration
}

func (e *SessionTimeoutError) Error() string {
	return fmt.Sprintf("send session exceeded its %s deadline", e.Timeout)
}

// transientStatusError marks a retryable HTTP status inside the retry loop.
type transientStatusError struct {
	statusCode int
}

func (e *transientStatusError) Error() string {
	return fmt.Sprintf("transient status %d", e.statusCode)
}
