// Package apperrors defines the failure taxonomy shared by the engine and
// the transport layer.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it
type Kind string

const (
	KindValidation  Kind = "validation"
	KindPolicy      Kind = "policy_violation"
	KindConflict    Kind = "concurrency_conflict"
	KindPersistence Kind = "persistence_failure"
	KindNotFound    Kind = "not_found"
)

// Error is a classified engine failure. Two errors match under errors.Is
// when their codes are equal, so a sentinel can be re-issued with a more
// specific message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable reports whether the caller may safely retry the operation once
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindPersistence
}

// With returns a copy of e carrying a more specific message
func (e *Error) With(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrAttemptLimitExceeded = &Error{Kind: KindPolicy, Code: "attempt_limit_exceeded", Message: "attempt limit exceeded"}
	ErrAttemptAlreadyActive = &Error{Kind: KindPolicy, Code: "attempt_already_active", Message: "an attempt is already in progress"}
	ErrStageMismatch        = &Error{Kind: KindPolicy, Code: "stage_mismatch", Message: "stage does not match the attempt's current stage"}
	ErrNotAuthorized        = &Error{Kind: KindPolicy, Code: "not_authorized", Message: "not authorized"}
	ErrConcurrencyConflict  = &Error{Kind: KindConflict, Code: "concurrency_conflict", Message: "attempt was modified concurrently"}
	ErrAttemptNotFound      = &Error{Kind: KindNotFound, Code: "attempt_not_found", Message: "attempt not found"}
	ErrTestNotFound         = &Error{Kind: KindNotFound, Code: "test_not_found", Message: "test not found"}
	ErrReportNotFound       = &Error{Kind: KindNotFound, Code: "report_not_found", Message: "plagiarism report not found"}
)

// Persistence wraps a store failure. Errors that are already classified
// pass through unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &Error{Kind: KindPersistence, Code: "persistence_failure", Message: "store operation failed", Err: err}
}

// KindOf classifies err. Unclassified errors count as persistence failures.
func KindOf(err error) Kind {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindValidation
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindPersistence
}

// CodeOf returns the stable error code for err
func CodeOf(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation_failed"
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "persistence_failure"
}
