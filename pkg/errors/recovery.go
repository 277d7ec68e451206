package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Safely runs fn and turns a panic into the error it returns. The recovered
// error is a fatal ErrInternal tagged with "panic" and the goroutine stack.
func Safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = RecoverPanic(r)
		}
	}()
	return fn()
}

func RecoverPanic(r interface{}) error {
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
		WithDetail("stack", string(debug.Stack())).
		AsFatal()
}

func IsPanic(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	panicked, _ := e.Details["panic"].(bool)
	return panicked
}
