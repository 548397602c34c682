package domain

import (
	"errors"
	"fmt"
	"time"
)

// TransientError marks a failure that is worth retrying: provider outages,
// network trouble, rate limiting. A rate-limited transient carries the delay
// the provider asked for.
type TransientError struct {
	Op          string
	Err         error
	RateLimited bool
	RetryAfter  time.Duration
}

func (e *TransientError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure that retrying cannot fix: malformed input or
// a policy rejection. Jobs failing permanently skip the remaining retry budget.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// TimedOutError is the synthetic error recorded by zombie reclamation when a
// worker stops reporting on a claimed job.
type TimedOutError struct {
	After time.Duration
}

func (e *TimedOutError) Error() string {
	return fmt.Sprintf("timed out: no worker report within %s", e.After)
}

// Transient wraps err as a retryable failure.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// RateLimited wraps err as a rate-limited retryable failure with the delay to
// honor before the next attempt.
func RateLimited(op string, err error, retryAfter time.Duration) error {
	return &TransientError{Op: op, Err: err, RateLimited: true, RetryAfter: retryAfter}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(op string, err error) error {
	return &PermanentError{Op: op, Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsRateLimited reports whether err is a rate-limited transient failure and
// returns the provider-requested delay, which may be zero.
func IsRateLimited(err error) (time.Duration, bool) {
	var te *TransientError
	if errors.As(err, &te) && te.RateLimited {
		return te.RetryAfter, true
	}
	return 0, false
}
