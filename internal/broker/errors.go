package broker

import (
	"context"
	"errors"

	pkgerrors "pdlbus/pkg/errors"
)

type timeout interface {
	Timeout() bool
}

// classify maps a transport library error onto the bus error kinds. Extra
// predicates let a transport flag its own timeout sentinels.
func classify(err error, isTimeout ...func(error) bool) error {
	if err == nil {
		return nil
	}

	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return pkgerrors.ErrInterrupted.WithCause(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.ErrTransportTimeout.WithCause(err)
	}

	var t timeout
	if errors.As(err, &t) && t.Timeout() {
		return pkgerrors.ErrTransportTimeout.WithCause(err)
	}
	for _, fn := range isTimeout {
		if fn(err) {
			return pkgerrors.ErrTransportTimeout.WithCause(err)
		}
	}

	return pkgerrors.ErrTransport.WithCause(err)
}

var errNotConnected = pkgerrors.ErrTransport.WithMessage("transport is not connected")
