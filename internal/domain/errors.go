package domain

import "errors"

// ErrorCode classifies failures of the status lifecycle.
type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeTerminalOrder     ErrorCode = "TERMINAL_ORDER"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeTransport         ErrorCode = "TRANSPORT_ERROR"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalOrder     = errors.New("order is in a terminal status")
	ErrConflict          = errors.New("order was updated concurrently")
	ErrTransport         = errors.New("transport error")

	// ErrStaleWrite is returned by stores when a compare-and-swap misses.
	ErrStaleWrite = errors.New("stored order changed since it was read")

	ErrInvalidOrder = errors.New("invalid order")
)

var sentinels = map[ErrorCode]error{
	CodeNotFound:          ErrNotFound,
	CodeForbidden:         ErrForbidden,
	CodeInvalidTransition: ErrInvalidTransition,
	CodeTerminalOrder:     ErrTerminalOrder,
	CodeConflict:          ErrConflict,
	CodeTransport:         ErrTransport,
}

// TransitionError carries a taxonomy code and a user-facing message.
// errors.Is matches it against the sentinel of the same code.
type TransitionError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func NewTransitionError(code ErrorCode, message string) *TransitionError {
	return &TransitionError{Code: code, Message: message}
}

func (e *TransitionError) Error() string {
	if e.Cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *TransitionError) Unwrap() error {
	return e.Cause
}

func (e *TransitionError) Is(target error) bool {
	return sentinels[e.Code] == target
}

// Retryable reports whether the caller may repeat the same request unchanged.
func (e *TransitionError) Retryable() bool {
	return e.Code == CodeTransport
}

// CodeOf extracts the taxonomy code of err, or "" when err is not classified.
func CodeOf(err error) ErrorCode {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}
