package scheduler

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a scheduling failure.
type ErrorCode string

const (
	// ErrCodeConfig indicates a missing or invalid voice configuration.
	// The affected item fails without any executor contact.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"
	// ErrCodeContext indicates a shared-context build failure. Every
	// item of the affected group fails.
	ErrCodeContext ErrorCode = "CONTEXT_ERROR"
	// ErrCodeExecution indicates the executor raised or returned no
	// output. Every item of the affected sub-batch fails.
	ErrCodeExecution ErrorCode = "EXECUTION_ERROR"
	// ErrCodeLoader indicates a variant load failure. Terminal for the
	// whole submission.
	ErrCodeLoader ErrorCode = "LOADER_ERROR"
)

// SchedulerError carries a classified scheduling failure.
type SchedulerError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *SchedulerError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates an error for a missing voice configuration.
func NewConfigError(message string) *SchedulerError {
	return &SchedulerError{Code: ErrCodeConfig, Message: message}
}

// NewContextError creates an error for a failed shared-context build.
func NewContextError(groupKey string, cause error) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeContext,
		Message: fmt.Sprintf("build shared context for group %q", groupKey),
		Cause:   cause,
	}
}

// NewExecutionError creates an error for a failed sub-batch execution.
func NewExecutionError(message string, cause error) *SchedulerError {
	return &SchedulerError{Code: ErrCodeExecution, Message: message, Cause: cause}
}

// NewLoaderError creates a terminal error for a failed variant load.
func NewLoaderError(variant string, cause error) *SchedulerError {
	return &SchedulerError{
		Code:    ErrCodeLoader,
		Message: fmt.Sprintf("load executor variant %q", variant),
		Cause:   cause,
	}
}

// IsLoaderError checks whether err is a terminal loader error.
func IsLoaderError(err error) bool {
	var se *SchedulerError
	if errors.As(err, &se) {
		return se.Code == ErrCodeLoader
	}
	return false
}
