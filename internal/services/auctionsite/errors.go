package auctionsite

import (
	"errors"
	"fmt"

	"github.com/findosh/auctionsite/internal/storage"
)

// Code classifies a domain error
type Code string

const (
	CodeNullArgument       Code = "NULL_ARGUMENT"
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeArgumentOutOfRange Code = "ARGUMENT_OUT_OF_RANGE"
	CodeInvalidOperation   Code = "INVALID_OPERATION"
	CodeEntityGone         Code = "ENTITY_GONE" // Refines CodeInvalidOperation
	CodeNameAlreadyInUse   Code = "NAME_ALREADY_IN_USE"
	CodeUnknownName        Code = "UNKNOWN_NAME"
	CodeTimeParadox        Code = "TIME_PARADOX"
	CodeUnavailable        Code = "UNAVAILABLE"
)

// Sentinels for errors.Is; they match any Error with the same code.
var (
	ErrNullArgument       = &Error{Code: CodeNullArgument, Message: "required argument missing"}
	ErrInvalidArgument    = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrArgumentOutOfRange = &Error{Code: CodeArgumentOutOfRange, Message: "argument out of range"}
	ErrInvalidOperation   = &Error{Code: CodeInvalidOperation, Message: "invalid operation"}
	ErrEntityGone         = &Error{Code: CodeEntityGone, Message: "entity no longer exists"}
	ErrNameAlreadyInUse   = &Error{Code: CodeNameAlreadyInUse, Message: "name already in use"}
	ErrUnknownName        = &Error{Code: CodeUnknownName, Message: "unknown name"}
	ErrTimeParadox        = &Error{Code: CodeTimeParadox, Message: "time in the past"}
	ErrUnavailable        = &Error{Code: CodeUnavailable, Message: "store unavailable"}
)

// Error is the domain error type returned by every operation
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable detail
	Name    string // Offending name, set for CodeNameAlreadyInUse
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code. An entity that
// is gone also matches ErrInvalidOperation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == CodeEntityGone && t.Code == CodeInvalidOperation
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func nameInUse(name string, cause error) *Error {
	return &Error{
		Code:    CodeNameAlreadyInUse,
		Message: fmt.Sprintf("name %q already in use", name),
		Name:    name,
		Cause:   cause,
	}
}

// fromStore maps a storage error onto the domain taxonomy. Domain errors
// pass through unchanged so callbacks run inside WithTx may return them.
func fromStore(err error, message string) error {
	var domain *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domain):
		return err
	case errors.Is(err, storage.ErrUnavailable):
		return &Error{Code: CodeUnavailable, Message: message, Cause: err}
	case errors.Is(err, storage.ErrForeignKeyViolation):
		return &Error{Code: CodeInvalidOperation, Message: message, Cause: err}
	case errors.Is(err, storage.ErrUniqueViolation):
		return &Error{Code: CodeNameAlreadyInUse, Message: message, Cause: err}
	case errors.Is(err, storage.ErrOutOfRange):
		return &Error{Code: CodeArgumentOutOfRange, Message: message, Cause: err}
	case errors.Is(err, storage.ErrNotFound):
		return &Error{Code: CodeEntityGone, Message: message, Cause: err}
	default:
		return fmt.Errorf("%s: %w", message, err)
	}
}
