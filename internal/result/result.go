// Package result provides a generic Result type for carrying a
// (value, error) pair through a channel before it is unwrapped.
package result

// Result holds either a successful value of type T or an error.
type Result[T any] struct {
	v   T
	err error
}

// New wraps an existing (T, error) pair, such as a function's return.
func New[T any](v T, err error) Result[T] {
	return Result[T]{v: v, err: err}
}

// Error creates a Result containing only an error, with the zero value of T.
func Error[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// Get returns both the value and error contained in the Result.
func (r *Result[T]) Get() (T, error) {
	return r.v, r.err
}
