package streamable

import (
	"errors"
	"fmt"
)

// Category classifies the error carried by a failed Result.
type Category int

const (
	CategoryNone Category = iota
	CategoryFetch
	CategoryDecode
	CategoryDependency
	CategoryCancelled
	CategoryInternal
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "none"
	case CategoryFetch:
		return "fetch"
	case CategoryDecode:
		return "decode"
	case CategoryDependency:
		return "dependency"
	case CategoryCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Result is the terminal outcome of a load: either Success with an asset or
// Failure with an error. The zero value is an uninitialized (pending) result.
type Result[T any] struct {
	asset       T
	err         error
	initialized bool
}

// Success creates a successful result.
func Success[T any](asset T) Result[T] {
	return Result[T]{asset: asset, initialized: true}
}

// Failure creates a failed result. A nil error is replaced so that a failure
// can always be told apart from a success.
func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result[T]{err: err, initialized: true}
}

// IsInitialized reports whether the result holds an outcome.
func (r Result[T]) IsInitialized() bool { return r.initialized }

// Succeeded reports whether the result is a Success.
func (r Result[T]) Succeeded() bool { return r.initialized && r.err == nil }

// Asset returns the asset of a successful result and the zero value otherwise.
func (r Result[T]) Asset() T { return r.asset }

// Err returns the error of a failed result.
func (r Result[T]) Err() error { return r.err }

// Category returns the failure category derived from the wrapped error.
func (r Result[T]) Category() Category {
	if r.err == nil {
		return CategoryNone
	}
	return CategoryOf(r.err)
}

func (r Result[T]) String() string {
	switch {
	case !r.initialized:
		return "pending"
	case r.err != nil:
		return fmt.Sprintf("failure(%s): %v", r.Category(), r.err)
	default:
		return "success"
	}
}

// Map converts the asset of a successful result and keeps failures and pending
// results as they are.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	switch {
	case !r.initialized:
		return Result[U]{}
	case r.err != nil:
		return Failure[U](r.err)
	default:
		return Success(fn(r.asset))
	}
}
