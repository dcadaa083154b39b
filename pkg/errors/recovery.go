package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError turns a recovered value into a fatal *Error with the stack of
// the panicking goroutine. It returns nil for a nil value.
func PanicError(r any) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}

	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// Guard runs fn and reports a panic inside it as a PanicError.
func Guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError(r)
		}
	}()
	return fn()
}

// Safely runs fn and hands a panic to onPanic instead of propagating it.
func Safely(fn func(), onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(PanicError(r))
		}
	}()
	fn()
}
