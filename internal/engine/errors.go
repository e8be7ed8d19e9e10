package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during rule execution.
//
// Runtime errors include:
//   - Re-entrant dispatch: the same (entity, trigger) pair dispatched again
//     while it is still being evaluated
//   - Depth exceeded: nested dispatch deeper than the configured limit
//   - Missing registers: a register read on a scope without a register bank
//
// Data problems (unknown ids, missing components) never produce a
// RuntimeError; they surface as ActionResult statuses and validation
// report entries instead.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Token identifies the affected dispatch.
	Token string

	// Entity and Trigger identify the dispatch target, when known.
	Entity  string
	Trigger string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeReentrantDispatch indicates an (entity, trigger) pair was
	// dispatched from within its own evaluation.
	ErrCodeReentrantDispatch RuntimeErrorCode = "REENTRANT_DISPATCH"

	// ErrCodeDepthExceeded indicates nested dispatch exceeded the limit.
	ErrCodeDepthExceeded RuntimeErrorCode = "DEPTH_EXCEEDED"

	// ErrCodeMissingRegisters indicates a register access on a scope
	// acquired without a register bank.
	ErrCodeMissingRegisters RuntimeErrorCode = "MISSING_REGISTERS"

	// ErrCodeRegisterRange indicates a register index outside the bank.
	ErrCodeRegisterRange RuntimeErrorCode = "REGISTER_RANGE"

	// ErrCodeUnknownEntity indicates a queued event names a missing entity.
	ErrCodeUnknownEntity RuntimeErrorCode = "UNKNOWN_ENTITY"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Entity != "" && e.Trigger != "" {
		return fmt.Sprintf("%s: %s (entity=%s, trigger=%s)", e.Code, e.Message, e.Entity, e.Trigger)
	}
	if e.Token != "" {
		return fmt.Sprintf("%s: %s (token=%s)", e.Code, e.Message, e.Token)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsReentrantError returns true if err is a re-entrant dispatch error.
// Uses errors.As to handle wrapped errors.
func IsReentrantError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeReentrantDispatch
	}
	return false
}

// IsDepthError returns true if err is a depth exceeded error.
func IsDepthError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeDepthExceeded
	}
	return false
}

// NewReentrantError creates a RuntimeError for re-entrant dispatch.
func NewReentrantError(entity, trigger string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReentrantDispatch,
		Message: "trigger dispatched again while still being evaluated",
		Entity:  entity,
		Trigger: trigger,
	}
}

// NewDepthError creates a RuntimeError for nested dispatch depth.
func NewDepthError(entity, trigger string, depth, maxDepth int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeDepthExceeded,
		Message: fmt.Sprintf("dispatch depth exceeded (%d >= %d)", depth, maxDepth),
		Entity:  entity,
		Trigger: trigger,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", maxDepth),
		},
	}
}
