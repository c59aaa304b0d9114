package internal

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// Sentinel errors for expected, non-exceptional conditions.
var (
	// ErrNoTranscript indicates no caption track exists in any requested
	// language. It is a legitimate outcome that resolves to a skipped video,
	// not a failure.
	ErrNoTranscript = errors.New("transcript unavailable")
	// ErrQuotaExceeded indicates the daily YouTube API quota budget would be
	// exceeded by the next call. Never retried.
	ErrQuotaExceeded = errors.New("youtube api quota exceeded")
	// ErrNotFound indicates the requested record does not exist in the store.
	ErrNotFound = errors.New("record not found")
	// ErrLocked indicates another pipeline run holds the run lock.
	ErrLocked = errors.New("run lock held by another process")
)

// TransientError marks an error as retryable (network blips, 5xx, rate
// limiting). The retry policy will re-attempt calls that fail with it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// PermanentError marks an error as not retryable (auth failure, permanent
// rejection, invalid input). It ends the current video's pipeline.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsTransient reports false for it even when the
// underlying error would otherwise classify as retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err should be retried. Explicit markers win;
// otherwise googleapi status codes and network timeouts are classified.
// Context cancellation is never retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return false
	}
	var trans *TransientError
	if errors.As(err, &trans) {
		return true
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNoTranscript) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return false
}

// StorageError wraps state store failures with operation context. Storage
// failures are fatal for the current run, not per-video.
type StorageError struct {
	Op      string
	VideoID string
	Err     error
}

func (e *StorageError) Error() string {
	if e.VideoID != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.VideoID, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DeliveryError wraps notification sender failures. Permanent reports
// whether the rejection is final (auth failure, rejected recipient) as
// opposed to a transient network condition.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("email delivery rejected: %v", e.Err)
	}
	return fmt.Sprintf("email delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
