package cmerr

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransientError marks an external failure worth retrying (timeouts,
// network errors, rate limits).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient external error in %s: %v", e.Op, e.Err)
}
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks an external failure that retrying cannot fix
// (malformed input, unsupported media). The stage fails without retry.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent external error in %s: %v", e.Op, e.Err)
}
func (e *PermanentError) Unwrap() error { return e.Err }

// DataIntegrityError marks a missing required upstream artifact, e.g.
// detecting tests with no transcript. Fatal to the session.
type DataIntegrityError struct {
	Op  string
	Err error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity error in %s: %v", e.Op, e.Err)
}
func (e *DataIntegrityError) Unwrap() error { return e.Err }

// ConcurrencyConflict signals a stale-version session write. Callers
// re-read the session and retry the transition.
type ConcurrencyConflict struct {
	SessionID       string
	ExpectedVersion int
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("concurrency conflict on session %s (expected version %d)", e.SessionID, e.ExpectedVersion)
}

// PreconditionError signals an operation attempted before its
// prerequisite, e.g. starting a session with no registered media.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed in %s: %s", e.Op, e.Reason)
}

// MalformedTranscriptError signals diarized input the normalizer cannot
// order deterministically.
type MalformedTranscriptError struct {
	Reason string
}

func (e *MalformedTranscriptError) Error() string {
	return fmt.Sprintf("malformed transcript: %s", e.Reason)
}

func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

func Permanent(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Op: op, Err: err}
}

// IsRetryable reports whether an external-call failure should go back
// through the backoff loop. Permanent and integrity failures never
// retry; everything wrapped as transient does; bare network and
// retryable gRPC errors are classified here so providers don't each
// need their own wrapping discipline.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var integ *DataIntegrityError
	if errors.As(err, &integ) {
		return false
	}
	var trans *TransientError
	if errors.As(err, &trans) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return IsRetryableGRPC(err)
}

// IsRetryableGRPC mirrors the status-code classification the GCP
// providers use for their long-running calls.
func IsRetryableGRPC(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Aborted:
		return true
	default:
		return false
	}
}

// IsRetryableHTTP classifies HTTP status codes for the OpenAI-style
// providers.
func IsRetryableHTTP(statusCode int) bool {
	if statusCode == 408 || statusCode == 429 {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}
