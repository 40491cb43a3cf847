package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for absent, cancelled or deleted records.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when the actor lacks the role, ownership or
	// assignment an operation needs.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidDecision is returned for approval decisions outside
	// approved/rejected or on tasks not awaiting approval.
	ErrInvalidDecision = errors.New("invalid decision")
	// ErrInvalidState is returned when a task's mode or terminal status
	// forbids the operation.
	ErrInvalidState = errors.New("invalid state")
	// ErrMixedTasks is returned when stages of different tasks are aggregated together.
	ErrMixedTasks = errors.New("stages belong to more than one task")
)

// ValidationError describes input rejected before any write.
// Err, when set, is the sentinel the error also matches with errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }
