package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// ErrNotFound: quest, profile or user absent, or not owned by the caller.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyCompleted: a second completion of the same assigned quest.
	ErrAlreadyCompleted = errors.New("quest already completed")

	// ErrValidation: the request is missing required state (e.g. no category).
	ErrValidation = errors.New("validation failed")

	// ErrPersistence: a transactional write failed and was rolled back.
	// Callers may retry.
	ErrPersistence = errors.New("persistence failure")

	// ErrUserExists: username already taken.
	ErrUserExists = errors.New("user already exists")

	// ErrForbidden: the acting user's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)

// NotFoundf wraps ErrNotFound with a description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Validationf wraps ErrValidation with a description.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsDomainError reports whether err carries one of the caller-facing
// sentinels, as opposed to an infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyCompleted) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUserExists) ||
		errors.Is(err, ErrForbidden)
}

// Persistence wraps an infrastructure error as ErrPersistence, leaving
// domain errors untouched.
func Persistence(op string, err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
