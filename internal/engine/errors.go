package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while handling an event.
//
// Runtime errors include:
//   - Unknown reaction: a matched task names a reaction no registry tier offers
//   - Invalid event: the inbound event is missing a required field
//
// Per-task reaction failures are never RuntimeErrors; they are collected as
// Outcomes in the Report.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// EventID identifies the pipeline run.
	EventID string

	// TaskID identifies the offending task (unknown reaction).
	TaskID int64

	// Reaction is the unresolved reaction name (unknown reaction).
	Reaction string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownReaction indicates a task references a reaction that no
	// registry tier offers.
	ErrCodeUnknownReaction RuntimeErrorCode = "UNKNOWN_REACTION"

	// ErrCodeInvalidEvent indicates a malformed inbound event.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.EventID != "" && e.TaskID != 0 {
		return fmt.Sprintf("%s: %s (event=%s, task=%d)", e.Code, e.Message, e.EventID, e.TaskID)
	}
	if e.EventID != "" {
		return fmt.Sprintf("%s: %s (event=%s)", e.Code, e.Message, e.EventID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownReaction returns true if the error is an unknown reaction error.
// Uses errors.As to handle wrapped errors.
func IsUnknownReaction(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownReaction
	}
	return false
}

// IsInvalidEvent returns true if the error is an invalid event error.
// Uses errors.As to handle wrapped errors.
func IsInvalidEvent(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidEvent
	}
	return false
}

// NewUnknownReactionError creates a RuntimeError for an unresolvable reaction.
func NewUnknownReactionError(taskID int64, reaction, service string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownReaction,
		Message:  fmt.Sprintf("reaction %q not found for service %q or any shared tier", reaction, service),
		TaskID:   taskID,
		Reaction: reaction,
		Details: map[string]string{
			"service": service,
		},
	}
}

// NewInvalidEventError creates a RuntimeError for a malformed event.
func NewInvalidEventError(field, message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidEvent,
		Message: fmt.Sprintf("%s: %s", field, message),
		Details: map[string]string{
			"field": field,
		},
	}
}
