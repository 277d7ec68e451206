// Package errors defines the coded errors shared by the bus services.
package errors

import (
	"errors"
	"net/http"
	"strings"
)

// class says how a retry loop should treat an error.
type class uint8

const (
	classDefault class = iota
	classRetryable
	classFatal
)

var (
	ErrNotFound           = NewError("NOT_FOUND", "resource not found", http.StatusNotFound).AsFatal()
	ErrValidation         = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest).AsFatal()
	ErrInternal           = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewError("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable).AsRetryable()

	// Bus errors.
	ErrConfiguration     = NewError("CONFIGURATION_ERROR", "invalid configuration", http.StatusInternalServerError).AsFatal()
	ErrTransport         = NewError("TRANSPORT_ERROR", "transport failure", http.StatusBadGateway).AsRetryable()
	ErrTransportTimeout  = NewError("TRANSPORT_TIMEOUT", "bus unreachable or timed out", http.StatusGatewayTimeout).AsRetryable()
	ErrInterrupted       = NewError("INTERRUPTED", "operation cancelled", http.StatusRequestTimeout).AsFatal()
	ErrEncoding          = NewError("ENCODING_ERROR", "failed to encode message", http.StatusInternalServerError).AsFatal()
	ErrMalformedEnvelope = NewError("MALFORMED_ENVELOPE", "malformed notification envelope", http.StatusBadRequest).AsFatal()

	// Signature errors.
	ErrSigning      = NewError("SIGNING_ERROR", "failed to sign product", http.StatusInternalServerError).AsFatal()
	ErrVerification = NewError("VERIFICATION_FAILURE", "no candidate key verified the signature", http.StatusUnauthorized).AsFatal()
)

// Error is a coded error. Two errors with the same Code match under errors.Is,
// so callers can compare against the package sentinels after wrapping.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
	class   class
}

func NewError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	if msg, ok := e.Details["message"].(string); ok && msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// IsRetryable reports whether repeating the operation may succeed. An error
// without an explicit class defers to a coded cause.
func (e *Error) IsRetryable() bool {
	switch e.resolve() {
	case classRetryable:
		return true
	case classFatal:
		return false
	}
	return true
}

func (e *Error) IsFatal() bool {
	return e.resolve() == classFatal
}

func (e *Error) resolve() class {
	if e.class != classDefault {
		return e.class
	}
	var inner *Error
	if e.Cause != nil && errors.As(e.Cause, &inner) {
		return inner.resolve()
	}
	return classDefault
}

func (e *Error) clone() *Error {
	c := *e
	if len(e.Details) > 0 {
		c.Details = make(map[string]interface{}, len(e.Details)+1)
		for k, v := range e.Details {
			c.Details[k] = v
		}
	} else {
		c.Details = nil
	}
	return &c
}

func (e *Error) WithCause(cause error) *Error {
	c := e.clone()
	c.Cause = cause
	return c
}

func (e *Error) WithMessage(message string) *Error {
	return e.WithDetail("message", message)
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]interface{}, 1)
	}
	c.Details[key] = value
	return c
}

func (e *Error) AsRetryable() *Error {
	c := e.clone()
	c.class = classRetryable
	return c
}

func (e *Error) AsFatal() *Error {
	c := e.clone()
	c.class = classFatal
	return c
}

// KindOf returns the Code of the outermost *Error in err's chain, or "" when
// err carries no code.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func IsNotFound(err error) bool          { return KindOf(err) == ErrNotFound.Code }
func IsValidation(err error) bool        { return KindOf(err) == ErrValidation.Code }
func IsConfiguration(err error) bool     { return KindOf(err) == ErrConfiguration.Code }
func IsMalformedEnvelope(err error) bool { return KindOf(err) == ErrMalformedEnvelope.Code }

// ToErrorResponse renders err as an HTTP status and JSON body. Uncoded errors
// become INTERNAL_ERROR without leaking their text.
func ToErrorResponse(err error) (int, map[string]interface{}) {
	var e *Error
	if !errors.As(err, &e) {
		e = ErrInternal
	}

	msg := e.Message
	if m, ok := e.Details["message"].(string); ok && m != "" {
		msg = m
	}
	body := map[string]interface{}{
		"error":      msg,
		"error_code": e.Code,
	}
	return e.Status, body
}
