package streamable

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConsumed is returned when a promise result is consumed a second time.
	ErrAlreadyConsumed = errors.New("promise result already consumed")
	// ErrNotResolved is returned by Consume while the load is still running.
	ErrNotResolved = errors.New("promise not resolved yet")
	// ErrAbandoned marks a load that was cancelled before it resolved.
	// It is not a failure: a fresh intention may load the same key again.
	ErrAbandoned = errors.New("load abandoned")
)

// FetchError is a transport level failure.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFound reports whether the remote answered that the content does not exist.
func (e *FetchError) NotFound() bool { return e.StatusCode == 404 }

// DecodeError is returned when a payload could not be parsed.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Key, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// CancelledError is a cooperative abort of a load.
type CancelledError struct {
	Key   string
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load %s cancelled: %v", e.Key, e.Cause)
	}
	return fmt.Sprintf("load %s cancelled", e.Key)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func (e *CancelledError) Is(target error) bool { return target == ErrAbandoned }

// DependencyFailedError reports that a load required by another one failed.
type DependencyFailedError struct {
	Dependency string
	Err        error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("dependency %s failed: %v", e.Dependency, e.Err)
}

func (e *DependencyFailedError) Unwrap() error { return e.Err }

// CategoryOf classifies an error into a failure Category.
func CategoryOf(err error) Category {
	var (
		cancelled  *CancelledError
		dependency *DependencyFailedError
		decode     *DecodeError
		fetch      *FetchError
	)
	switch {
	case err == nil:
		return CategoryNone
	case errors.As(err, &cancelled), errors.Is(err, ErrAbandoned):
		return CategoryCancelled
	case errors.As(err, &dependency):
		return CategoryDependency
	case errors.As(err, &decode):
		return CategoryDecode
	case errors.As(err, &fetch):
		return CategoryFetch
	default:
		return CategoryInternal
	}
}

// IsIrrecoverable reports whether loading the same key again cannot succeed.
// Malformed payloads and missing content qualify, transient transport errors do not.
func IsIrrecoverable(err error) bool {
	var fetch *FetchError
	if errors.As(err, &fetch) && fetch.NotFound() {
		return true
	}
	return CategoryOf(err) == CategoryDecode
}
