// Package common defines shared constants and sentinel errors used across
// the DomainX auth service. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors. ValidationError wraps ErrValidation.
	ErrValidation = errors.New("validation failed")

	// Login errors. ErrInvalidCredentials deliberately covers both an unknown
	// email and a wrong password.
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrAccountDeactivated     = errors.New("account is deactivated")
	ErrAccountPendingApproval = errors.New("account is pending admin approval")
	ErrAccountLocked          = errors.New("account is temporarily locked")
	ErrIncorrectPassword      = errors.New("current password is incorrect")

	// Token errors. Expired, forged and malformed tokens are not distinguished.
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidResetToken = errors.New("invalid or expired reset token")

	// Notification errors.
	ErrNotificationFailed = errors.New("notification failed")
)

// FieldError describes a single rejected input field.
type FieldError struct {
	Field string `json:"field"`
	Tag   string `json:"tag"`
	Param string `json:"param,omitempty"`
}

// ValidationError carries field-level detail for rejected input.
// errors.Is(err, ErrValidation) reports true for it.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return ErrValidation.Error() + ": " + strings.Join(names, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError is a shorthand for a single-field validation failure.
func NewValidationError(field, tag, param string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Tag: tag, Param: param}}}
}

// UniqueViolation names the field whose uniqueness a write broke. Field is
// empty when the store could not tell. errors.Is(err, ErrAlreadyExists)
// reports true for it.
type UniqueViolation struct {
	Field string
}

func (e *UniqueViolation) Error() string {
	if e.Field == "" {
		return ErrAlreadyExists.Error()
	}
	return e.Field + " " + ErrAlreadyExists.Error()
}

func (e *UniqueViolation) Is(target error) bool {
	return target == ErrAlreadyExists
}
