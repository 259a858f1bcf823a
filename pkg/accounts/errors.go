package accounts

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates no account matches the given key
	ErrNotFound = errors.New("account not found")

	// ErrUnauthenticated indicates the action requires an identity and the
	// requester has none
	ErrUnauthenticated = errors.New("authentication required")

	// ErrDenied indicates the requester has an identity but lacks the
	// required relationship or role
	ErrDenied = errors.New("permission denied")

	// ErrSlugExhausted indicates the slug generator ran out of retries. In
	// practice this means broken entropy or a broken existence check, and it
	// is treated as a server fault, not a user input problem.
	ErrSlugExhausted = errors.New("slug generation exhausted retries")
)

// ValidationError carries per-field validation failures
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// DuplicateKeyError indicates a unique constraint (email or slug) was hit.
// The storage layer is the sole arbiter of these races; an existence check
// passing earlier never excuses treating this as anything but a conflict.
type DuplicateKeyError struct {
	Field string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("an account with this %s already exists", e.Field)
}
