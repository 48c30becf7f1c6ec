package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrRequiresApproval   = errors.New("requires admin approval")
	ErrUpstream           = errors.New("upstream failure")
	ErrUnavailable        = errors.New("database connection not available")
)

// Validationf wraps ErrValidation with a message naming the violated constraint.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// StateError reports an illegal status transition. It matches ErrConflict.
type StateError struct {
	Entity   string
	ID       string
	Action   string
	Current  string
	Required string
}

func (e *StateError) Error() string {
	current := e.Current
	if current == "" {
		current = "unset"
	}
	return fmt.Sprintf("%s cannot be %s from current status: %s. Only '%s' %ss can be %s.",
		e.Entity, e.Action, current, e.Required, lower(e.Entity), e.Action)
}

func (e *StateError) Unwrap() error { return ErrConflict }

// Message strips the sentinel prefix so handlers can show the constraint alone.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var se *StateError
	if errors.As(err, &se) {
		return se.Error()
	}
	msg := err.Error()
	for _, sentinel := range []error{
		ErrValidation, ErrNotFound, ErrInvalidCredentials, ErrUnauthorized,
		ErrConflict, ErrRequiresApproval, ErrUpstream, ErrUnavailable,
	} {
		prefix := sentinel.Error() + ": "
		if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
