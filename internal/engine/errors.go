package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/autoboard/internal/automation"
)

// ValidationError reports an action that cannot run because its inputs are
// missing or unusable. The executor skips the action and carries on.
type ValidationError struct {
	// RuleID identifies the rule that owns the action.
	RuleID string

	// Action is the wire tag of the skipped action.
	Action automation.ActionKind

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("validation: %s: %s (rule=%s)", e.Action, e.Message, e.RuleID)
	}
	return fmt.Sprintf("validation: %s: %s", e.Action, e.Message)
}

// StoreError reports a failed read or write against the record store.
// The first StoreError aborts the remaining actions of a rule.
type StoreError struct {
	RuleID string
	Action automation.ActionKind
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %v", e.Action, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// MatchConfigError reports a rule whose trigger configuration cannot be used.
type MatchConfigError = automation.MatchConfigError

// IsValidationError returns true if the error is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsStoreError returns true if the error is a StoreError.
// Uses errors.As to handle wrapped errors.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// IsMatchConfigError returns true if the error is a MatchConfigError.
func IsMatchConfigError(err error) bool {
	var me *MatchConfigError
	return errors.As(err, &me)
}

func invalid(ruleID string, kind automation.ActionKind, format string, args ...any) *ValidationError {
	return &ValidationError{RuleID: ruleID, Action: kind, Message: fmt.Sprintf(format, args...)}
}
