package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a workflow, application or transition does not exist
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition is returned when a transition does not leave the current stage
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrAlreadyTerminal is returned when the application has reached a stage with no
	// outgoing transitions. It wraps ErrIllegalTransition.
	ErrAlreadyTerminal = fmt.Errorf("%w: application is at a terminal stage", ErrIllegalTransition)

	// ErrConditionNotMet is returned when at least one transition condition is false
	ErrConditionNotMet = errors.New("condition not met")

	// ErrPermissionDenied is returned when the actor lacks a required capability
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidationFailed is returned when a workflow submission is structurally invalid
	ErrValidationFailed = errors.New("workflow validation failed")

	// ErrConflict is returned when an update would orphan live applications or history
	ErrConflict = errors.New("conflict")

	// ErrInactiveWorkflow is returned when starting an application on a deactivated workflow
	ErrInactiveWorkflow = errors.New("workflow is inactive")

	// ErrEmptyHistory is returned when an application has no history entries
	ErrEmptyHistory = errors.New("application has no status history")
)

// TransitionError explains why a requested transition was rejected
type TransitionError struct {
	Kind             error
	CurrentStageID   string
	TransitionID     string
	FailedConditions []string
	MissingPerms     []string
}

func (e *TransitionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " (transition %q, current stage %q)", e.TransitionID, e.CurrentStageID)
	if len(e.FailedConditions) > 0 {
		fmt.Fprintf(&b, ": failing conditions [%s]", strings.Join(e.FailedConditions, ", "))
	}
	if len(e.MissingPerms) > 0 {
		fmt.Fprintf(&b, ": missing permissions [%s]", strings.Join(e.MissingPerms, ", "))
	}
	return b.String()
}

func (e *TransitionError) Unwrap() error {
	return e.Kind
}

// ValidationFailedError carries the complete list of problems found in a submission
type ValidationFailedError struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(msgs, "; "))
}

func (e *ValidationFailedError) Unwrap() error {
	return ErrValidationFailed
}

// ConflictError names the ids that make an update or append unsafe
type ConflictError struct {
	Reason        string
	StageIDs      []string
	TransitionIDs []string
}

func (e *ConflictError) Error() string {
	var b strings.Builder
	b.WriteString(ErrConflict.Error())
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.StageIDs) > 0 {
		fmt.Fprintf(&b, " (stages: %s)", strings.Join(e.StageIDs, ", "))
	}
	if len(e.TransitionIDs) > 0 {
		fmt.Fprintf(&b, " (transitions: %s)", strings.Join(e.TransitionIDs, ", "))
	}
	return b.String()
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
