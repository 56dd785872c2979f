package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrPolicySkip            = errors.New("skipped by policy")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrNotificationsDisabled = errors.New("notifications disabled")
)

// ValidationError describes a rejected field. It matches ErrValidation with errors.Is.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PolicySkip is a deliberate no-op, e.g. confidence under the configured floor.
type PolicySkip struct {
	Reason string
}

func (e *PolicySkip) Error() string { return "policy skip: " + e.Reason }

func (e *PolicySkip) Is(target error) bool { return target == ErrPolicySkip }

// NotFound builds an ErrNotFound wrapper naming the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// SkipReason maps a rejection to the log/metric label distinguishing validation
// failures from policy skips.
func SkipReason(err error) string {
	switch {
	case errors.Is(err, ErrPolicySkip):
		return "policy_skip"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "error"
	}
}
