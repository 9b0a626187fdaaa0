package apperror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrInvalidCode covers every way a resolve code can be unusable for the
	// caller: unknown, soft-deleted, claimed by someone else, or lost a race.
	ErrInvalidCode = errors.New("invalid code")

	// ErrDuplicateCode is returned by batch creation when one or more code
	// values already exist (or repeat inside the request).
	ErrDuplicateCode = errors.New("duplicate code")
)

// InvalidCodeMessage is the only text a caller ever sees for ErrInvalidCode.
// It never names the code, the owner or the reason.
const InvalidCodeMessage = "invalid or expired code"

type AppError struct {
	Err     error    // actual error
	Message string   // Human-readable error message, safe to show to users
	Field   string   // Optional: field causing the error
	Values  []string // Optional: offending values (duplicate codes)
	Detail  string   // Optional: internal identifiers, for logs only
}

// Error includes Detail so logged errors keep their ids. Anything shown to a
// user must use Message instead.
func (e *AppError) Error() string {
	if e.Detail == "" {
		return e.Message
	}
	return e.Message + " (" + e.Detail + ")"
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: resource + " not found",
		Detail:  "id " + id,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: resource + " already exists",
		Detail:  "id " + id,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// InvalidCode returns the opaque claim/resolve failure.
func InvalidCode() *AppError {
	return &AppError{
		Err:     ErrInvalidCode,
		Message: InvalidCodeMessage,
	}
}

// DuplicateCodes reports the colliding values of a rejected batch.
func DuplicateCodes(values []string) *AppError {
	return &AppError{
		Err:     ErrDuplicateCode,
		Message: fmt.Sprintf("duplicate codes: %s", strings.Join(values, ", ")),
		Field:   "codes",
		Values:  values,
	}
}
