package services

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy. Business-rule conflicts (quota, challenge state) are
// explicit types the caller branches on; TransientError wraps storage
// failures the caller may retry with backoff.

// ValidationError: malformed input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// QuotaExceededError: the daily limit for an action is exhausted.
// Non-fatal; carries the reset time for display.
type QuotaExceededError struct {
	ActionType string
	Limit      int
	ResetsAt   time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily quota exceeded for %s (limit %d, resets %s)",
		e.ActionType, e.Limit, e.ResetsAt.Format(time.RFC3339))
}

// Benign challenge conflicts, reported to the caller as informational states.
var (
	ErrAlreadyJoined     = errors.New("challenge already joined")
	ErrChallengeExpired  = errors.New("challenge has ended")
	ErrChallengeInactive = errors.New("challenge is not active")
)

// TransientError: storage timeout or contention. Retryable; the wrapping
// transaction has rolled back, so no partial effects were applied.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ConsistencyError: an invariant the schema should enforce was violated
// (e.g., a duplicate achievement slipped past the unique index). Logged
// and treated as a bug, never shown to end users.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency violation: %s", e.Detail)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
